package eventbus

// historyRing is a fixed-size circular buffer of events with oldest-first
// eviction, retained per topic for diagnostics and replay.
type historyRing struct {
	events   []Event
	head     int // index of oldest element
	tail     int // index where next element will be inserted
	size     int
	capacity int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &historyRing{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// add inserts an event, evicting the oldest if the ring is full.
// Callers hold the bus lock.
func (r *historyRing) add(evt Event) bool {
	evicted := false
	r.events[r.tail] = evt
	r.tail = (r.tail + 1) % r.capacity

	if r.size < r.capacity {
		r.size++
	} else {
		r.head = (r.head + 1) % r.capacity
		evicted = true
	}
	return evicted
}

// snapshot returns the retained events in order from oldest to newest.
func (r *historyRing) snapshot() []Event {
	result := make([]Event, 0, r.size)
	for i := 0; i < r.size; i++ {
		result = append(result, r.events[(r.head+i)%r.capacity])
	}
	return result
}
