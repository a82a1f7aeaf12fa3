package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PromMetrics holds the Prometheus view of probe runs.
type PromMetrics struct {
	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lastStatus    *prometheus.GaugeVec
	success       *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPromMetrics creates probe metrics on a private registry.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()

	m := &PromMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polis_probe_requests_total",
				Help: "Total number of probe requests by target and outcome",
			},
			[]string{"target", "outcome"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polis_probe_duration_seconds",
				Help:    "Probe duration in seconds across all attempts",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"target"},
		),

		lastStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polis_probe_last_status_code",
				Help: "HTTP status code of the last probe, 0 when no response was received",
			},
			[]string{"target"},
		),

		success: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polis_probe_success",
				Help: "1 when the last probe received a response, 0 otherwise",
			},
			[]string{"target"},
		),

		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polis_probe_last_run_timestamp_seconds",
				Help: "Unix time of the last probe run",
			},
			[]string{"target"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.duration,
		m.lastStatus,
		m.success,
		m.lastRun,
	)

	return m
}

// Observe records the outcome of one probe target.
func (m *PromMetrics) Observe(pm ProbeMetrics) {
	m.requestsTotal.WithLabelValues(pm.Target, pm.Outcome()).Inc()
	m.duration.WithLabelValues(pm.Target).Observe(pm.Duration.Seconds())
	m.lastStatus.WithLabelValues(pm.Target).Set(float64(pm.StatusCode))
	m.lastRun.WithLabelValues(pm.Target).SetToCurrentTime()

	if pm.Success() {
		m.success.WithLabelValues(pm.Target).Set(1)
	} else {
		m.success.WithLabelValues(pm.Target).Set(0)
	}
}

// Registry returns the Prometheus registry holding the probe metrics.
func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push replaces the metrics of job on the Pushgateway at url.
func (m *PromMetrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
