package orchestrator

import (
	"testing"
	"time"
)

func TestEventEmitterDeliversInOrder(t *testing.T) {
	emitter := NewEventEmitter(4)

	emitter.Emit(Event{Type: EventRoundStart, Round: 1})
	emitter.Emit(Event{Type: EventMessage, Round: 1})
	emitter.Emit(Event{Type: EventRoundEnd, Round: 1})
	emitter.Close()

	var got []EventType
	for event := range emitter.Events() {
		got = append(got, event.Type)
		if event.Timestamp.IsZero() {
			t.Error("emitted event has no timestamp")
		}
	}

	want := []EventType{EventRoundStart, EventMessage, EventRoundEnd}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	emitter := NewEventEmitter(1)

	emitter.Emit(Event{Type: EventRoundStart})
	// No reader: the second emit times out and is dropped instead of
	// blocking the critical path.
	done := make(chan struct{})
	go func() {
		emitter.Emit(Event{Type: EventMessage})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full channel")
	}

	if emitter.DroppedCount() != 1 {
		t.Errorf("DroppedCount = %d, want 1", emitter.DroppedCount())
	}
}

func TestEventEmitterPreservesExplicitTimestamp(t *testing.T) {
	emitter := NewEventEmitter(1)
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	emitter.Emit(Event{Type: EventDecision, Timestamp: stamp})
	emitter.Close()

	event := <-emitter.Events()
	if !event.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want %v", event.Timestamp, stamp)
	}
}
