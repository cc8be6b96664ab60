package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metersOnce        sync.Once
	metersInitErr     error
	reviewCounter     metric.Int64Counter
	governanceCounter metric.Int64Counter
)

// RecordReviewEvent emits an OTel counter for a review lifecycle transition.
// Uses the global meter provider; a no-op provider makes this free.
func RecordReviewEvent(ctx context.Context, reviewType, status string) {
	if err := ensureMeters(); err != nil {
		return
	}
	reviewCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("review.type", reviewType),
		attribute.String("review.status", status),
	))
}

// RecordGovernanceEvent emits an OTel counter for a governance operation.
func RecordGovernanceEvent(ctx context.Context, operation, outcome string) {
	if err := ensureMeters(); err != nil {
		return
	}
	governanceCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("governance.operation", operation),
		attribute.String("governance.outcome", outcome),
	))
}

func ensureMeters() error {
	metersOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("govhub.governance")

		reviewCounter, metersInitErr = meter.Int64Counter(
			"govhub.review.transitions_total",
			metric.WithDescription("Review lifecycle transitions partitioned by type and status"),
			metric.WithUnit("{count}"),
		)
		if metersInitErr != nil {
			return
		}

		governanceCounter, metersInitErr = meter.Int64Counter(
			"govhub.governance.operations_total",
			metric.WithDescription("Governance manager operations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
	})
	return metersInitErr
}
