package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordRouted("A", "B")
	m.RecordRouted("A", "B")
	m.RecordRoutingFailure("unauthorized")
	m.RecordGovernanceOp("request_integration", "success")
	m.RecordReviewTransition("approved")
	m.SetTopologySize(3, 2)
	m.RecordBusPublished()
	m.RecordBusHandlerFailure()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`govhub_messages_routed_total{source="A",target="B"} 2`,
		`govhub_routing_failures_total{reason="unauthorized"} 1`,
		`govhub_governance_operations_total{operation="request_integration",outcome="success"} 1`,
		`govhub_review_transitions_total{status="approved"} 1`,
		`govhub_domains_registered 3`,
		`govhub_active_edges 2`,
		`govhub_bus_events_published_total 1`,
		`govhub_bus_handler_failures_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSetupProviderWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{ServiceName: "govhub"})
	if err != nil {
		t.Fatalf("expected no error without endpoint, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned error: %v", err)
	}
}

func TestMetersNoopWithoutProvider(t *testing.T) {
	// The global provider defaults to no-op; recording must not panic.
	RecordReviewEvent(context.Background(), "integration", "approved")
	RecordGovernanceEvent(context.Background(), "register_domain", "success")
}
