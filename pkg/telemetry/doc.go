// Package telemetry provides Prometheus metrics for the governance hub and
// the OpenTelemetry tracer bootstrap.
//
// Metrics live on a private registry so tests can create isolated instances;
// the admin server exposes them through Handler. Tracing is optional and
// enabled only when an OTLP endpoint is configured.
package telemetry
