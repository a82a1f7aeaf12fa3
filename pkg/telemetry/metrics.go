package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	probeRunCounter       metric.Int64Counter
	probeAttemptCounter   metric.Int64Counter
	probeFailureCounter   metric.Int64Counter
	probeLatencyHistogram metric.Float64Histogram
)

// ProbeMetrics captures the fields needed to record the outcome of one probe target.
type ProbeMetrics struct {
	Target      string
	URL         string
	StatusCode  int
	FailureKind string
	Duration    time.Duration
	Attempts    int
}

// Success reports whether the probe received a response.
func (m ProbeMetrics) Success() bool {
	return m.FailureKind == "" || m.FailureKind == "none"
}

// Outcome is "success" or the failure kind.
func (m ProbeMetrics) Outcome() string {
	if m.Success() {
		return "success"
	}
	return m.FailureKind
}

// RecordProbeMetrics emits counters and histograms that describe a probe run
// through the global meter provider.
func RecordProbeMetrics(ctx context.Context, m ProbeMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("probe.target", m.Target),
		attribute.String("url.full", m.URL),
		attribute.String("probe.outcome", m.Outcome()),
	}
	if m.StatusCode > 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", m.StatusCode))
	}

	probeRunCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Attempts > 0 {
		probeAttemptCounter.Add(ctx, int64(m.Attempts), metric.WithAttributes(attrs...))
	}

	if m.Duration > 0 {
		probeLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if !m.Success() {
		probeFailureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("probe.target", m.Target),
			attribute.String("failure.kind", m.FailureKind),
		))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("polis.probe")

		probeRunCounter, metricsInitErr = meter.Int64Counter(
			"probe.runs_total",
			metric.WithDescription("Probe target runs partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		probeAttemptCounter, metricsInitErr = meter.Int64Counter(
			"probe.attempts_total",
			metric.WithDescription("HTTP requests issued by probes, including retries"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		probeFailureCounter, metricsInitErr = meter.Int64Counter(
			"probe.failures_total",
			metric.WithDescription("Failed probe runs partitioned by failure kind"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		probeLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"probe.duration_ms",
			metric.WithDescription("Observed probe latency across all attempts"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
