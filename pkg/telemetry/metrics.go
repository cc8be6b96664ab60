package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the governance hub.
type Metrics struct {
	// Routing metrics
	routedTotal     *prometheus.CounterVec
	routingFailures *prometheus.CounterVec

	// Governance metrics
	governanceOps     *prometheus.CounterVec
	reviewTransitions *prometheus.CounterVec

	// Registry gauges
	domainsRegistered prometheus.Gauge
	activeEdges       prometheus.Gauge

	// Bus metrics
	busPublished    prometheus.Counter
	busHandlerFails prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with all hub metrics registered on a
// private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		routedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_messages_routed_total",
				Help: "Messages routed between domains, by source and target",
			},
			[]string{"source", "target"},
		),

		routingFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_routing_failures_total",
				Help: "Routing attempts rejected by authorization, by reason class",
			},
			[]string{"reason"},
		),

		governanceOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_governance_operations_total",
				Help: "Governance manager operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),

		reviewTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_review_transitions_total",
				Help: "Review state machine transitions by resulting status",
			},
			[]string{"status"},
		),

		domainsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govhub_domains_registered",
			Help: "Number of registered domains",
		}),

		activeEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govhub_active_edges",
			Help: "Number of active integration edges in the topology",
		}),

		busPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "govhub_bus_events_published_total",
			Help: "Events published on the internal event bus",
		}),

		busHandlerFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "govhub_bus_handler_failures_total",
			Help: "Event handler panics recovered by the bus",
		}),

		registry: registry,
	}

	registry.MustRegister(
		m.routedTotal,
		m.routingFailures,
		m.governanceOps,
		m.reviewTransitions,
		m.domainsRegistered,
		m.activeEdges,
		m.busPublished,
		m.busHandlerFails,
	)
	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRouted counts a successfully routed message.
func (m *Metrics) RecordRouted(source, target string) {
	m.routedTotal.WithLabelValues(source, target).Inc()
}

// RecordRoutingFailure counts a rejected routing attempt.
func (m *Metrics) RecordRoutingFailure(reason string) {
	m.routingFailures.WithLabelValues(reason).Inc()
}

// RecordGovernanceOp counts one governance manager operation.
func (m *Metrics) RecordGovernanceOp(operation, outcome string) {
	m.governanceOps.WithLabelValues(operation, outcome).Inc()
}

// RecordReviewTransition counts a review reaching the given status.
func (m *Metrics) RecordReviewTransition(status string) {
	m.reviewTransitions.WithLabelValues(status).Inc()
}

// SetTopologySize updates the registry gauges.
func (m *Metrics) SetTopologySize(domains, activeEdges int) {
	m.domainsRegistered.Set(float64(domains))
	m.activeEdges.Set(float64(activeEdges))
}

// RecordBusPublished counts one published bus event.
func (m *Metrics) RecordBusPublished() {
	m.busPublished.Inc()
}

// RecordBusHandlerFailure counts one recovered handler panic.
func (m *Metrics) RecordBusHandlerFailure() {
	m.busHandlerFails.Inc()
}
