// Package webhooks notifies an external endpoint when optimization runs
// finish.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"visitplan/internal/model"
)

// EventRunCompleted is the only event type sent today.
const EventRunCompleted = "run.completed"

// Event is the JSON body of one delivery.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"ts"`
	RunID     string          `json:"runId"`
	Status    string          `json:"status"`
	Summary   model.Summary   `json:"summary"`
	Stats     *model.RunStats `json:"stats,omitempty"`
}

// NewRunCompleted builds the event for a finished plan.
func NewRunCompleted(plan model.Plan, stats model.RunStats) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      EventRunCompleted,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RunID:     plan.RunID,
		Status:    plan.Status,
		Summary:   plan.Summary,
		Stats:     &stats,
	}
}

// Worker posts queued events to URL, signing bodies when Secret is set.
// Failed deliveries are retried with exponential backoff up to MaxAttempts.
type Worker struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	Log         zerolog.Logger

	// backoff is replaceable in tests
	backoff func(attempts int) time.Duration

	queue chan Event
	wg    sync.WaitGroup
}

func NewWorker(url, secret string, maxAttempts, queueSize int, timeout time.Duration, log zerolog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: timeout},
		MaxAttempts: maxAttempts,
		Log:         log,
		backoff:     nextBackoff,
		queue:       make(chan Event, queueSize),
	}
}

// Enqueue hands evt to the worker. It reports false when the queue is full.
func (w *Worker) Enqueue(evt Event) bool {
	select {
	case w.queue <- evt:
		return true
	default:
		w.Log.Warn().Str("run_id", evt.RunID).Msg("webhook queue full, event dropped")
		return false
	}
}

// Start delivers events until ctx is done; Wait blocks until it has returned.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-w.queue:
				w.deliver(ctx, evt)
			}
		}
	}()
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) deliver(ctx context.Context, evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.Log.Error().Err(err).Msg("webhook encode failed")
		return
	}
	log := w.Log.With().Str("run_id", evt.RunID).Str("event_id", evt.ID).Logger()
	for attempt := 0; attempt < w.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff(attempt - 1)):
			}
		}
		start := time.Now()
		code, err := w.post(ctx, evt.Type, body)
		if err == nil {
			log.Debug().Int("code", code).Dur("latency", time.Since(start)).Msg("webhook delivered")
			return
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("webhook delivery failed")
	}
	log.Error().Int("attempts", w.MaxAttempts).Msg("webhook delivery abandoned")
}

func (w *Worker) post(ctx context.Context, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.Secret, time.Now(), body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Minute {
		base = time.Minute
	}
	return base
}
