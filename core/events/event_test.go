package events

import (
	"strconv"
	"testing"

	"dropshop/core/types"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s stubEvent) Event() *types.Event { return s.evt }

func TestRecorderKeepsEveryEventWithoutLimit(t *testing.T) {
	recorder := &Recorder{}
	for i := 0; i < 5; i++ {
		recorder.Emit(stubEvent{evt: &types.Event{Type: strconv.Itoa(i)}})
	}
	if len(recorder.Events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(recorder.Events))
	}
}

func TestRecorderBoundsRetention(t *testing.T) {
	recorder := &Recorder{Limit: 4}
	for i := 0; i < 100; i++ {
		recorder.Emit(stubEvent{evt: &types.Event{Type: strconv.Itoa(i)}})
	}
	if len(recorder.Events) != 4 {
		t.Fatalf("expected 4 retained events, got %d", len(recorder.Events))
	}
	if cap(recorder.Events) > 8 {
		t.Fatalf("backing array grew to %d despite the bound", cap(recorder.Events))
	}
	for i, evt := range recorder.Events {
		if want := strconv.Itoa(96 + i); evt.Type != want {
			t.Fatalf("event %d is %q, want %q", i, evt.Type, want)
		}
	}
}
