package events

import "dropshop/core/types"

// Event represents a structured state change emitted by the marketplace.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the gateway,
// indexers, webhook fan-out).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose caller does not care about events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder captures emitted events in order. Intended for tests and for the
// gateway's in-memory event tail. A positive Limit keeps only the most recent
// Limit events so a long-running emitter cannot grow the slice without bound.
type Recorder struct {
	Limit  int
	Events []*types.Event
}

type payloadEvent interface {
	Event() *types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	if p, ok := evt.(payloadEvent); ok {
		if e := p.Event(); e != nil {
			r.record(e)
			return
		}
	}
	r.record(&types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
}

func (r *Recorder) record(e *types.Event) {
	r.Events = append(r.Events, e)
	if r.Limit > 0 && len(r.Events) > r.Limit {
		overflow := len(r.Events) - r.Limit
		// Shift in place so the backing array stays at the cap instead of
		// pinning every dropped event through a reslice.
		r.Events = append(r.Events[:0], r.Events[overflow:]...)
	}
}
