package api

import (
	"sync"

	"visitplan/internal/model"
)

// EventBroker fans solver progress out to the clients watching a run.
type EventBroker interface {
	Subscribe(runID string) chan model.ProgressEvent
	Unsubscribe(runID string, ch chan model.ProgressEvent)
	Publish(runID string, evt model.ProgressEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop events
// rather than stall the solver, except for the final "done" event.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.ProgressEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.ProgressEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan model.ProgressEvent {
	ch := make(chan model.ProgressEvent, 16)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan model.ProgressEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

func (b *Broker) Publish(runID string, evt model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		deliver(ch, evt)
	}
}

// deliver sends evt without blocking. A full buffer drops evt, unless it
// is the final event of a run: then the oldest buffered event makes room
// so the subscriber always learns that the run ended.
func deliver(ch chan model.ProgressEvent, evt model.ProgressEvent) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		if evt.Phase != "done" {
			return
		}
		select {
		case <-ch:
		default:
		}
	}
}
