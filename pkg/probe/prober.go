package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-probe/internal/governance"
	probetls "github.com/polisai/polis-probe/internal/tls"
	"github.com/polisai/polis-probe/pkg/telemetry"
)

const (
	// DefaultTimeout bounds a probe when the target does not set one.
	DefaultTimeout = 5 * time.Second

	tracerName = "github.com/polisai/polis-probe/pkg/probe"

	// maxDrainBytes caps how much of a response body is read before closing.
	maxDrainBytes = 64 << 10
)

// UserAgent is sent with every probe request.
var UserAgent = "polis-probe/1.0"

// Options configures a Prober.
type Options struct {
	// TLS holds client TLS material shared by all targets; the per-target
	// Insecure flag overrides InsecureSkipVerify.
	TLS            probetls.Config
	Retry          governance.RetryConfig
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	// Metrics receives one observation per target when set.
	Metrics *telemetry.PromMetrics
	// Now is used for timestamps and certificate expiry; defaults to time.Now.
	Now func() time.Time
}

// Prober runs HTTPS smoke checks.
type Prober struct {
	tlsConfig      probetls.Config
	retry          *governance.RetryPolicy
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *telemetry.PromMetrics
	tlsMetrics     *probetls.TLSMetricsCollector
	now            func() time.Time
}

// NewProber creates a Prober.
func NewProber(opts Options) *Prober {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	tlsMetrics, err := probetls.NewTLSMetricsCollector(logger)
	if err != nil {
		logger.Debug("TLS metrics disabled", "error", err)
	}

	return &Prober{
		tlsConfig:      opts.TLS,
		retry:          governance.NewRetryPolicy(opts.Retry),
		logger:         logger.With("component", "probe"),
		tracerProvider: tp,
		tracer:         tp.Tracer(tracerName),
		metrics:        opts.Metrics,
		tlsMetrics:     tlsMetrics,
		now:            now,
	}
}

// RunAll probes targets one after another and aggregates the results.
func (p *Prober) RunAll(ctx context.Context, targets []Target) *Summary {
	summary := &Summary{RunID: uuid.NewString()}
	for _, target := range targets {
		summary.add(p.run(ctx, summary.RunID, target))
	}
	return summary
}

// Run probes a single target. It never returns nil and never panics on
// request failures; the failure is recorded in the Result.
func (p *Prober) Run(ctx context.Context, target Target) *Result {
	return p.run(ctx, uuid.NewString(), target)
}

func (p *Prober) run(ctx context.Context, runID string, target Target) *Result {
	if target.Timeout <= 0 {
		target.Timeout = DefaultTimeout
	}
	if target.Name == "" {
		target.Name = target.URL
	}

	res := &Result{
		RunID:     runID,
		Target:    target.Name,
		URL:       target.URL,
		StartedAt: p.now(),
	}
	logger := p.logger.With("run_id", runID, "target", target.Name, "url", target.URL)

	ctx, span := p.tracer.Start(ctx, "probe.run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("probe.run_id", runID),
			attribute.String("probe.target", target.Name),
			attribute.String("url.full", target.URL),
			attribute.Bool("probe.insecure", target.Insecure),
		),
	)
	defer span.End()

	logger.Debug("Probe started",
		"timeout", target.Timeout,
		"insecure", target.Insecure,
		"max_retries", p.retry.Config().MaxRetries,
	)

	start := time.Now()
	status, err := p.attempt(ctx, logger, target, res)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = NewProbeError(target.Name, target.URL, err)
		res.FailureKind = res.Err.Kind
		span.RecordError(err)
		span.SetStatus(codes.Error, string(res.FailureKind))
		var tlsErr *probetls.TLSError
		if errors.As(err, &tlsErr) {
			logger.Warn("TLS configuration rejected", "details", tlsErr.GetDetailedMessage())
		}
		logger.Warn("Probe failed",
			"failure_kind", res.FailureKind,
			"attempts", res.Attempts,
			"duration", res.Duration,
			"error", err,
		)
	} else {
		res.StatusCode = status
		res.FailureKind = probetls.FailureNone
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		logger.Info("Probe completed",
			"status", status,
			"attempts", res.Attempts,
			"duration", res.Duration,
		)
	}
	span.SetAttributes(
		attribute.String("probe.failure_kind", string(res.FailureKind)),
		attribute.Int("probe.attempts", res.Attempts),
	)

	p.record(ctx, res)
	return res
}

// attempt performs the request through the retry policy. The client is built
// once per target; keep-alives are disabled so every attempt dials anew.
func (p *Prober) attempt(ctx context.Context, logger *slog.Logger, target Target, res *Result) (int, error) {
	client, err := p.newClient(target)
	if err != nil {
		return 0, err
	}

	return p.retry.Execute(ctx, http.MethodGet, func(attempt int) (int, error) {
		res.Attempts++
		if attempt > 0 {
			logger.Info("Retrying probe", "attempt", attempt+1)
		}
		return p.do(ctx, client, target, res)
	})
}

func (p *Prober) do(ctx context.Context, client *http.Client, target Target, res *Result) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Request-ID", res.RunID)
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Draining a bounded amount lets the server finish its write cleanly.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	res.TLS = probetls.SummarizeConnection(resp.TLS, p.now())
	return resp.StatusCode, nil
}

func (p *Prober) newClient(target Target) (*http.Client, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}

	tlsSettings := p.tlsConfig
	tlsSettings.InsecureSkipVerify = target.Insecure
	tlsConfig, err := probetls.BuildClient(tlsSettings, u.Hostname())
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: target.Timeout,
		DisableKeepAlives:   true,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport, otelhttp.WithTracerProvider(p.tracerProvider)),
		Timeout:   target.Timeout,
	}, nil
}

func (p *Prober) record(ctx context.Context, res *Result) {
	pm := telemetry.ProbeMetrics{
		Target:      res.Target,
		URL:         res.URL,
		StatusCode:  res.StatusCode,
		FailureKind: string(res.FailureKind),
		Duration:    res.Duration,
		Attempts:    res.Attempts,
	}

	telemetry.RecordProbeMetrics(ctx, pm)
	if p.tlsMetrics != nil {
		if res.TLS != nil {
			p.tlsMetrics.RecordHandshake(ctx, res.Target, res.TLS)
		}
		if res.FailureKind == probetls.FailureTLS {
			p.tlsMetrics.RecordHandshakeError(ctx, res.Target, res.Err)
		}
	}
	if p.metrics != nil {
		p.metrics.Observe(pm)
	}
}
