// Package telemetry wires OpenTelemetry tracing and metrics and Prometheus
// metrics for probe runs.
//
// Traces are exported over OTLP/gRPC when an endpoint is configured. Metric
// instruments record through the global meter provider, and a private
// Prometheus registry can be pushed to a Pushgateway at the end of a run,
// since the probe exits before any scraper could reach it.
package telemetry
