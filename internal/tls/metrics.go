package tls

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	expiryWarningDays  = 30
	expiryCriticalDays = 7
)

var (
	metricsOnce    sync.Once
	metricsInitErr error
	tlsInstruments *instruments
)

type instruments struct {
	handshakes        metric.Int64Counter
	handshakeErrors   metric.Int64Counter
	certificateExpiry metric.Int64Gauge
}

// TLSMetricsCollector records client-side TLS observations for probed targets.
type TLSMetricsCollector struct {
	inst   *instruments
	logger *slog.Logger
}

// NewTLSMetricsCollector returns a collector backed by the process-wide TLS
// instruments.
func NewTLSMetricsCollector(logger *slog.Logger) (*TLSMetricsCollector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	metricsOnce.Do(func() {
		tlsInstruments, metricsInitErr = newInstruments()
	})
	if metricsInitErr != nil {
		return nil, metricsInitErr
	}

	return &TLSMetricsCollector{
		inst:   tlsInstruments,
		logger: logger.With("component", "tls"),
	}, nil
}

func newInstruments() (*instruments, error) {
	meter := otel.GetMeterProvider().Meter("polis.probe.tls")
	inst := &instruments{}

	var err error
	inst.handshakes, err = meter.Int64Counter(
		"probe.tls.handshakes_total",
		metric.WithDescription("Completed TLS handshakes by negotiated version and cipher suite"),
		metric.WithUnit("{handshake}"),
	)
	if err != nil {
		return nil, err
	}

	inst.handshakeErrors, err = meter.Int64Counter(
		"probe.tls.handshake_errors_total",
		metric.WithDescription("Probes that failed during TLS negotiation or verification"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	inst.certificateExpiry, err = meter.Int64Gauge(
		"probe.tls.certificate_expiry_days",
		metric.WithDescription("Days until the leaf certificate presented by the target expires"),
		metric.WithUnit("d"),
	)
	if err != nil {
		return nil, err
	}

	return inst, nil
}

// RecordHandshake records the negotiated session and the leaf certificate
// expiry for target. A nil info is ignored.
func (c *TLSMetricsCollector) RecordHandshake(ctx context.Context, target string, info *ConnectionInfo) {
	if info == nil {
		return
	}

	c.inst.handshakes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("tls_version", info.Version),
		attribute.String("cipher_suite", info.CipherSuite),
	))

	c.logger.DebugContext(ctx, "TLS handshake completed",
		"target", target,
		"tls_version", info.Version,
		"cipher_suite", info.CipherSuite,
		"server_name", info.ServerName,
		"resumed", info.DidResume,
		"peer_cert_count", len(info.PeerCertificates),
	)

	if len(info.PeerCertificates) > 0 {
		c.RecordCertificateExpiry(ctx, target, info.PeerCertificates[0])
	}
}

// RecordHandshakeError counts a TLS failure for target.
func (c *TLSMetricsCollector) RecordHandshakeError(ctx context.Context, target string, err error) {
	c.inst.handshakeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
	))
	c.logger.DebugContext(ctx, "TLS handshake failed", "target", target, "error", err)
}

// RecordCertificateExpiry records how long the certificate remains valid and
// logs a warning when it is expired or close to expiry.
func (c *TLSMetricsCollector) RecordCertificateExpiry(ctx context.Context, target string, cert CertificateInfo) {
	c.inst.certificateExpiry.Record(ctx, int64(cert.ExpiresInDays), metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("subject", cert.Subject),
	))

	attrs := []any{
		"target", target,
		"subject", cert.Subject,
		"expires_on", cert.NotAfter,
		"days_remaining", cert.ExpiresInDays,
	}

	switch {
	case cert.Expired:
		c.logger.WarnContext(ctx, "Certificate has expired", attrs...)
	case cert.ExpiresInDays <= expiryCriticalDays:
		c.logger.WarnContext(ctx, "Certificate expires very soon", attrs...)
	case cert.ExpiresInDays <= expiryWarningDays:
		c.logger.InfoContext(ctx, "Certificate expires soon", attrs...)
	default:
		c.logger.DebugContext(ctx, "Certificate expiry recorded", attrs...)
	}
}
