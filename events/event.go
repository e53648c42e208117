package events

import (
	"context"
	"time"
)

// Event is an immutable domain fact recorded by an aggregate.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// Handler reacts to a dispatched event. Returned errors are logged by the
// bus and never propagate back to the caller that produced the event.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a plain function to [Handler].
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle calls f(ctx, ev).
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Recorder collects events on an aggregate until they are pulled.
// The zero value is ready to use. Recorder is not safe for concurrent use,
// matching the single-request ownership of an aggregate instance.
type Recorder struct {
	pending []Event
}

// Record appends ev to the pending list.
func (r *Recorder) Record(ev Event) {
	r.pending = append(r.pending, ev)
}

// PullEvents returns the pending events and clears the list.
func (r *Recorder) PullEvents() []Event {
	out := r.pending
	r.pending = nil
	return out
}

// PendingEvents returns a copy of the pending events without clearing them.
func (r *Recorder) PendingEvents() []Event {
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}
