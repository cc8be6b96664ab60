package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/polisai/govhub/pkg/compliance"
	"github.com/polisai/govhub/pkg/config"
	"github.com/polisai/govhub/pkg/domain"
	"github.com/polisai/govhub/pkg/eventbus"
	"github.com/polisai/govhub/pkg/governance"
	"github.com/polisai/govhub/pkg/hub"
	"github.com/polisai/govhub/pkg/logging"
	"github.com/polisai/govhub/pkg/registry"
	"github.com/polisai/govhub/pkg/review"
	"github.com/polisai/govhub/pkg/storage"
)

func TestLoadConfigWithoutPath(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "info"})

	cfg, provider, err := loadConfig("", logger)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if provider != nil {
		t.Error("Expected no file provider without a config path")
	}
	if cfg.Server.AdminAddress == "" {
		t.Error("Expected a default admin address")
	}
}

func TestOpenStoreSelection(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("Expected memory store without a snapshot file, got %T", store)
	}

	cfg.Storage.SnapshotFile = filepath.Join(t.TempDir(), "snapshot.json")
	store, err = openStore(cfg)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	if _, ok := store.(*storage.FileStore); !ok {
		t.Errorf("Expected file store with a snapshot file, got %T", store)
	}
}

// TestGovernanceLifecycle runs the full flow the daemon wires together:
// register two domains, request and approve an integration, then route a
// message across the approved edge.
func TestGovernanceLifecycle(t *testing.T) {
	ctx := context.Background()

	bus := eventbus.New()
	defer bus.Close()

	reg := registry.New(nil)
	reviews := review.New(review.WithBus(bus))
	tracker := compliance.New(nil)
	manager := governance.New(reg, reviews, tracker, bus)

	bot := hub.New(bus, reg)
	if err := bot.Start(); err != nil {
		t.Fatalf("bot start failed: %v", err)
	}
	defer bot.Stop()

	if _, err := manager.RegisterDomain(ctx, "orders", []string{"api"}, []string{"data-map"}); err != nil {
		t.Fatalf("register orders failed: %v", err)
	}
	if _, err := manager.RegisterDomain(ctx, "billing", []string{"api"}, nil); err != nil {
		t.Fatalf("register billing failed: %v", err)
	}

	res, err := manager.RequestIntegration(ctx, "orders", "billing", "api", "invoice sync", domain.PriorityNormal)
	if err != nil {
		t.Fatalf("request integration failed: %v", err)
	}
	if res.IntegrationID != "INT-000001" || res.ReviewID != "REV-000001" {
		t.Fatalf("unexpected ids: %s %s", res.IntegrationID, res.ReviewID)
	}

	// Before approval, routing is refused.
	failed := make(chan eventbus.Event, 1)
	if _, err := bus.Subscribe(domain.TopicRoutingFailed, func(evt eventbus.Event) { failed <- evt }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := bus.Publish(domain.TopicIntegrationMessage, domain.IntegrationMessage{Source: "orders", Target: "billing"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a routing failure before approval")
	}

	status, err := manager.ApproveIntegration(ctx, res.IntegrationID, "alice", "reviewed")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if status != domain.IntegrationActive {
		t.Fatalf("expected active integration, got %s", status)
	}

	// After approval, the message reaches the target domain's inbound topic.
	inbound := make(chan eventbus.Event, 1)
	if _, err := bus.Subscribe(domain.InboundTopic("billing"), func(evt eventbus.Event) { inbound <- evt }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	msg := domain.IntegrationMessage{
		Source:  "orders",
		Target:  "billing",
		Payload: map[string]any{"invoice": "inv-42"},
	}
	if err := bus.Publish(domain.TopicIntegrationMessage, msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case evt := <-inbound:
		got, ok := evt.Payload.(domain.IntegrationMessage)
		if !ok || got.Payload["invoice"] != "inv-42" {
			t.Fatalf("unexpected inbound payload: %#v", evt.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("approved message was not delivered")
	}

	// A request against an unregistered domain leaves no partial state.
	before := len(manager.Integrations())
	if _, err := manager.RequestIntegration(ctx, "orders", "warehouse", "api", "", domain.PriorityNormal); err == nil {
		t.Fatal("expected unknown-domain failure")
	}
	if len(manager.Integrations()) != before {
		t.Error("failed request left a partial integration behind")
	}
}
