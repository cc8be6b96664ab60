// Package hub implements the runtime message router. The bot listens for
// integration messages on the event bus and forwards them to the target
// domain only when the topology holds an approved, active edge for the pair.
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/eventbus"
	"github.com/polisai/govhub/pkg/registry"
	"github.com/polisai/govhub/pkg/telemetry"
)

// Stats is a point-in-time routing counter snapshot.
type Stats struct {
	Routed       uint64            `json:"routed"`
	Failed       uint64            `json:"failed"`
	FailuresBy   map[string]uint64 `json:"failures_by_reason"`
	LastRoutedAt time.Time         `json:"last_routed_at,omitzero"`
}

// Bot routes integration messages between domains. Routing failures are
// reported as events, never as errors back to the publisher.
type Bot struct {
	bus      *eventbus.Bus
	registry *registry.Registry
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu           sync.Mutex
	subID        string
	routed       uint64
	failed       uint64
	failuresBy   map[string]uint64
	lastRoutedAt time.Time
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the bot logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics installs Prometheus metrics recording.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(b *Bot) { b.metrics = metrics }
}

// New creates a Bot over the bus and the topology registry. Call Start to
// begin routing.
func New(bus *eventbus.Bus, reg *registry.Registry, opts ...Option) *Bot {
	b := &Bot{
		bus:        bus,
		registry:   reg,
		logger:     slog.Default(),
		failuresBy: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start subscribes the bot to the integration message topic.
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subID != "" {
		return fmt.Errorf("hub bot already started")
	}

	subID, err := b.bus.Subscribe(domain.TopicIntegrationMessage, b.handle)
	if err != nil {
		return fmt.Errorf("hub bot subscribe: %w", err)
	}
	b.subID = subID
	b.logger.Info("Hub bot routing started", "topic", domain.TopicIntegrationMessage)
	return nil
}

// Stop unsubscribes the bot. In-flight messages finish delivery.
func (b *Bot) Stop() {
	b.mu.Lock()
	subID := b.subID
	b.subID = ""
	b.mu.Unlock()

	if subID != "" {
		b.bus.Unsubscribe(subID)
	}
}

// Stats returns a copy of the routing counters.
func (b *Bot) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	byReason := make(map[string]uint64, len(b.failuresBy))
	for reason, n := range b.failuresBy {
		byReason[reason] = n
	}
	return Stats{
		Routed:       b.routed,
		Failed:       b.failed,
		FailuresBy:   byReason,
		LastRoutedAt: b.lastRoutedAt,
	}
}

func (b *Bot) handle(evt eventbus.Event) {
	msg, ok := parseMessage(evt.Payload)
	if !ok || msg.Source == "" || msg.Target == "" {
		b.fail(msg, "invalid message")
		return
	}

	validation := b.registry.ValidatePath(msg.Source, msg.Target)
	if !validation.Valid {
		b.fail(msg, validation.Reason)
		return
	}

	if err := b.bus.Publish(domain.InboundTopic(msg.Target), msg); err != nil {
		b.fail(msg, "delivery failed: "+err.Error())
		return
	}

	b.mu.Lock()
	b.routed++
	b.lastRoutedAt = time.Now()
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordRouted(msg.Source, msg.Target)
	}
	b.publishResult(domain.TopicRouted, domain.RoutedResult{
		Source:   msg.Source,
		Target:   msg.Target,
		Routed:   true,
		RoutedAt: time.Now(),
	})
	b.logger.Debug("Message routed", "source", msg.Source, "target", msg.Target)
}

func (b *Bot) fail(msg domain.IntegrationMessage, reason string) {
	b.mu.Lock()
	b.failed++
	b.failuresBy[reason]++
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordRoutingFailure(reason)
	}
	b.publishResult(domain.TopicRoutingFailed, domain.RoutedResult{
		Source:   msg.Source,
		Target:   msg.Target,
		Routed:   false,
		Reason:   reason,
		RoutedAt: time.Now(),
	})
	b.logger.Warn("Routing refused", "source", msg.Source, "target", msg.Target, "reason", reason)
}

func (b *Bot) publishResult(topic string, result domain.RoutedResult) {
	if err := b.bus.Publish(topic, result); err != nil {
		b.logger.Warn("Routing result publish failed", "topic", topic, "error", err)
	}
}

// parseMessage accepts both a typed payload and the generic map form that a
// JSON-decoded message arrives as.
func parseMessage(payload any) (domain.IntegrationMessage, bool) {
	switch v := payload.(type) {
	case domain.IntegrationMessage:
		return v, true
	case *domain.IntegrationMessage:
		if v == nil {
			return domain.IntegrationMessage{}, false
		}
		return *v, true
	case map[string]any:
		source, _ := v["source"].(string)
		target, _ := v["target"].(string)
		body, _ := v["payload"].(map[string]any)
		return domain.IntegrationMessage{Source: source, Target: target, Payload: body}, true
	default:
		return domain.IntegrationMessage{}, false
	}
}
