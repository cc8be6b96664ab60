// Package eventbus provides the topic-based publish/subscribe primitive that
// connects the governance components.
//
// Delivery guarantees: per (topic, subscriber) pair events arrive in publish
// order. Each subscription drains its own queue on a dedicated goroutine, so
// a slow or failing subscriber never stalls the publisher or any other
// subscriber. Cross-topic and cross-subscriber ordering is not guaranteed.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/telemetry"
)

// DefaultHistorySize bounds the per-topic diagnostic history.
const DefaultHistorySize = 100

// Event is a single published message.
type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes one event. Handlers run on the subscription's dispatch
// goroutine; a panicking handler is recovered and logged without affecting
// other subscribers.
type Handler func(Event)

// Bus is an in-memory topic bus with bounded per-topic history.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string]*subscription
	history     map[string]*historyRing
	historySize int
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	closed      bool
	wg          sync.WaitGroup

	statsMu       sync.Mutex
	published     uint64
	handlerPanics uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistorySize overrides the per-topic history capacity.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historySize = n
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics enables publish and handler-failure counters.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(b *Bus) { b.metrics = metrics }
}

// New creates a Bus ready for use.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[string]*subscription),
		history:     make(map[string]*historyRing),
		historySize: DefaultHistorySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers payload to every subscriber matching topic. It never
// blocks on subscribers and never fails for subscriber errors; the only
// error condition is invalid topic syntax.
func (b *Bus) Publish(topic string, payload any) error {
	if topic == "" {
		return fmt.Errorf("publish: %w: empty topic", domain.ErrInvalidTopic)
	}

	evt := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("publish: bus closed")
	}
	ring, ok := b.history[topic]
	if !ok {
		ring = newHistoryRing(b.historySize)
		b.history[topic] = ring
	}
	ring.add(evt)

	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(evt)
	}

	b.statsMu.Lock()
	b.published++
	b.statsMu.Unlock()
	if b.metrics != nil {
		b.metrics.RecordBusPublished()
	}
	return nil
}

// Subscribe registers handler for every topic matching pattern. The pattern
// "*" matches all topics; any other pattern matches exactly one topic.
// Returns a subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("subscribe: %w: empty pattern", domain.ErrInvalidTopic)
	}
	if handler == nil {
		return "", fmt.Errorf("subscribe: nil handler")
	}

	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", fmt.Errorf("subscribe: bus closed")
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go b.dispatch(sub)
	return sub.id, nil
}

// Unsubscribe removes a subscription. Events already queued for it are
// still delivered before the dispatcher exits.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// History returns a copy of the retained events for topic, oldest first.
func (b *Bus) History(topic string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ring, ok := b.history[topic]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

// Stats reports bus counters for diagnostics.
func (b *Bus) Stats() (published, handlerPanics uint64) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.published, b.handlerPanics
}

// Close stops all dispatchers after draining their queues.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	b.wg.Wait()
}

// dispatch drains sub's queue in FIFO order until the subscription stops.
func (b *Bus) dispatch(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			b.deliverBatch(sub, sub.take())
			return
		case <-sub.wake:
			b.deliverBatch(sub, sub.take())
		}
	}
}

func (b *Bus) deliverBatch(sub *subscription, events []Event) {
	for _, evt := range events {
		b.deliver(sub, evt)
	}
}

func (b *Bus) deliver(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.statsMu.Lock()
			b.handlerPanics++
			b.statsMu.Unlock()
			if b.metrics != nil {
				b.metrics.RecordBusHandlerFailure()
			}
			b.logger.Error("Event handler failed",
				"topic", evt.Topic,
				"event_id", evt.ID,
				"pattern", sub.pattern,
				"error", fmt.Sprint(r),
			)
		}
	}()
	sub.handler(evt)
}

// subscription owns an unbounded FIFO queue so Publish never blocks while
// preserving per-subscriber delivery order.
type subscription struct {
	id      string
	pattern string
	handler Handler

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) matches(topic string) bool {
	return s.pattern == "*" || s.pattern == topic
}

func (s *subscription) enqueue(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) take() []Event {
	s.mu.Lock()
	events := s.queue
	s.queue = nil
	s.mu.Unlock()
	return events
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}
