package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"visitplan/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that progress
// reaches websocket clients attached to any API replica.
type RedisBroker struct {
	rdb redis.UniversalClient
	log zerolog.Logger

	mu  sync.Mutex
	pss map[chan model.ProgressEvent]*redis.PubSub
}

func NewRedisBroker(url string, log zerolog.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisBrokerClient(redis.NewClient(opt), log), nil
}

func NewRedisBrokerClient(rdb redis.UniversalClient, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: log, pss: map[chan model.ProgressEvent]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(runID string) chan model.ProgressEvent {
	ch := make(chan model.ProgressEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	// initial consume to ensure subscription
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn().Err(err).Str("run_id", runID).Msg("redis subscribe failed")
	}
	b.mu.Lock()
	b.pss[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			deliver(ch, evt)
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; ch is closed once its
// forwarding goroutine drains.
func (b *RedisBroker) Unsubscribe(runID string, ch chan model.ProgressEvent) {
	b.mu.Lock()
	ps := b.pss[ch]
	delete(b.pss, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(runID string, evt model.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	if err := b.rdb.Publish(ctx, b.chanName(runID), data).Err(); err != nil {
		b.log.Warn().Err(err).Str("run_id", runID).Msg("redis publish failed")
	}
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(runID string) string { return "run:" + runID }
