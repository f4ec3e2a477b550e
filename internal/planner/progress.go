package planner

import "visitplan/internal/model"

// progressBuffer bounds how many events may wait for a lagging consumer.
const progressBuffer = 32

// progressRelay hands progress events to a consumer on its own goroutine,
// so a slow consumer never holds up the search. Improve events are dropped
// while the buffer is full; every other phase is always delivered.
type progressRelay struct {
	events chan model.ProgressEvent
	done   chan struct{}
}

func newProgressRelay(consume func(model.ProgressEvent)) *progressRelay {
	r := &progressRelay{events: make(chan model.ProgressEvent, progressBuffer), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for evt := range r.events {
			consume(evt)
		}
	}()
	return r
}

func (r *progressRelay) send(evt model.ProgressEvent) {
	if evt.Phase == "improve" {
		select {
		case r.events <- evt:
		default:
		}
		return
	}
	r.events <- evt
}

// close waits until the consumer has seen every queued event.
func (r *progressRelay) close() {
	close(r.events)
	<-r.done
}
