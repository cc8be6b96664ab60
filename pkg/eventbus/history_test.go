package eventbus

import (
	"testing"

	"pgregory.net/rapid"
)

// Eviction is always oldest-first and the ring never exceeds its capacity.
func TestHistoryEvictionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 50).Draw(t, "capacity")
		numEvents := rapid.IntRange(capacity+1, capacity*3).Draw(t, "num_events")

		ring := newHistoryRing(capacity)
		for i := 0; i < numEvents; i++ {
			ring.add(Event{Payload: i})
		}

		events := ring.snapshot()
		if len(events) != capacity {
			t.Fatalf("expected %d retained events, got %d", capacity, len(events))
		}
		for i, evt := range events {
			want := numEvents - capacity + i
			if evt.Payload.(int) != want {
				t.Fatalf("event %d: expected payload %d, got %v", i, want, evt.Payload)
			}
		}
	})
}

func TestHistoryRingDefaultCapacity(t *testing.T) {
	ring := newHistoryRing(0)
	if ring.capacity != DefaultHistorySize {
		t.Errorf("expected default capacity %d, got %d", DefaultHistorySize, ring.capacity)
	}
}
