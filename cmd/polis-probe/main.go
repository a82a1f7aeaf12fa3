// Package main is the entry point for the polis-probe binary.
// It runs HTTPS smoke checks against one or more endpoints and prints the outcome.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/polisai/polis-probe/pkg/config"
	"github.com/polisai/polis-probe/pkg/logging"
	"github.com/polisai/polis-probe/pkg/probe"
	"github.com/polisai/polis-probe/pkg/telemetry"
)

const (
	serviceName     = "polis-probe"
	defaultLogLevel = "error"

	telemetryFlushTimeout = 5 * time.Second
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// errProbeFailed is returned when --fail-on-error is set and a target failed.
// The result lines already describe the failure, so main prints nothing more.
var errProbeFailed = errors.New("one or more probes failed")

// CLIConfig holds the parsed CLI configuration
type CLIConfig struct {
	Config              string
	URL                 string
	Timeout             time.Duration
	Insecure            bool
	AllowInsecureRemote bool
	Output              string
	Retries             int
	FailOnError         bool
	LogLevel            string
	CAFile              string
	CertFile            string
	KeyFile             string
	ServerName          string
	OTLPEndpoint        string
	Pushgateway         string

	// Changed records which flags were set explicitly on the command line.
	Changed map[string]bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errProbeFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-probe
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-probe",
		Short: "HTTPS smoke probe",
		Long: `Issue one GET per target and report whether the server responded.

Any HTTP status counts as a response. With no flags the probe checks the local
registration endpoint with certificate verification disabled.

Example:
  polis-probe --url https://localhost:3002/register --timeout 5s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runProbe,
	}

	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.StringP("url", "u", config.DefaultURL, "URL to probe (replaces configured targets)")
	flags.DurationP("timeout", "t", config.DefaultTimeout, "Request timeout")
	flags.Bool("insecure", true, "Skip certificate verification")
	flags.Bool("allow-insecure-remote", false, "Allow --insecure for non-loopback hosts")
	flags.StringP("output", "o", config.FormatText, "Output format (text, json)")
	flags.Int("retries", 0, "Retries for failed or retryable responses")
	flags.Bool("fail-on-error", false, "Exit 1 when any target fails")
	flags.StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	flags.String("ca-file", "", "Absolute path to a PEM CA bundle")
	flags.String("cert-file", "", "Client certificate for mutual TLS")
	flags.String("key-file", "", "Client key for mutual TLS")
	flags.String("server-name", "", "Override the TLS server name")
	flags.String("otlp-endpoint", "", "OTLP/gRPC endpoint for traces")
	flags.String("pushgateway", "", "Prometheus Pushgateway URL")

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", serviceName, version)
		},
	}
}

// parseCLIConfig parses command line flags and returns a CLIConfig
func parseCLIConfig(cmd *cobra.Command, _ []string) (*CLIConfig, error) {
	flags := cmd.Flags()
	cli := &CLIConfig{Changed: make(map[string]bool)}

	stringFlags := map[string]*string{
		"config":        &cli.Config,
		"url":           &cli.URL,
		"output":        &cli.Output,
		"log-level":     &cli.LogLevel,
		"ca-file":       &cli.CAFile,
		"cert-file":     &cli.CertFile,
		"key-file":      &cli.KeyFile,
		"server-name":   &cli.ServerName,
		"otlp-endpoint": &cli.OTLPEndpoint,
		"pushgateway":   &cli.Pushgateway,
	}
	for name, dst := range stringFlags {
		value, err := flags.GetString(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = value
	}

	boolFlags := map[string]*bool{
		"insecure":              &cli.Insecure,
		"allow-insecure-remote": &cli.AllowInsecureRemote,
		"fail-on-error":         &cli.FailOnError,
	}
	for name, dst := range boolFlags {
		value, err := flags.GetBool(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = value
	}

	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return nil, fmt.Errorf("failed to get timeout flag: %w", err)
	}
	cli.Timeout = timeout

	retries, err := flags.GetInt("retries")
	if err != nil {
		return nil, fmt.Errorf("failed to get retries flag: %w", err)
	}
	cli.Retries = retries

	for name := range stringFlags {
		cli.Changed[name] = flags.Changed(name)
	}
	for name := range boolFlags {
		cli.Changed[name] = flags.Changed(name)
	}
	cli.Changed["timeout"] = flags.Changed("timeout")
	cli.Changed["retries"] = flags.Changed("retries")

	return cli, nil
}

// buildProbeConfig loads the file and environment configuration, lets
// explicitly set flags override it and validates the merged result.
func buildProbeConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.LoadUnvalidated(cli.Config)
	if err != nil {
		return nil, err
	}

	if cli.Changed["url"] {
		cfg.SetSingleURL(cli.URL)
	}
	if cli.Changed["timeout"] {
		cfg.SetTimeout(cli.Timeout)
	}
	if cli.Changed["insecure"] {
		cfg.SetInsecure(cli.Insecure)
	}
	if cli.Changed["allow-insecure-remote"] {
		cfg.TLS.AllowInsecureRemote = cli.AllowInsecureRemote
	}
	if cli.Changed["output"] {
		cfg.Output.Format = cli.Output
	}
	if cli.Changed["retries"] {
		cfg.Retry.MaxRetries = cli.Retries
	}
	if cli.Changed["fail-on-error"] {
		cfg.Output.FailOnError = cli.FailOnError
	}
	if cli.Changed["log-level"] {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.Changed["ca-file"] {
		cfg.TLS.CAFile = cli.CAFile
	}
	if cli.Changed["cert-file"] {
		cfg.TLS.CertFile = cli.CertFile
	}
	if cli.Changed["key-file"] {
		cfg.TLS.KeyFile = cli.KeyFile
	}
	if cli.Changed["server-name"] {
		cfg.TLS.ServerName = cli.ServerName
	}
	if cli.Changed["otlp-endpoint"] {
		cfg.Telemetry.OTLPEndpoint = cli.OTLPEndpoint
	}
	if cli.Changed["pushgateway"] {
		cfg.Telemetry.PushgatewayURL = cli.Pushgateway
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// runProbe is the main entry point for the probe command
func runProbe(cmd *cobra.Command, args []string) error {
	cliConfig, err := parseCLIConfig(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := buildProbeConfig(cliConfig)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)

	ctx := cmd.Context()

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.OTLPInsecure,
		Headers:        cfg.Telemetry.Headers,
		ResourceTags:   cfg.Telemetry.ResourceTags,
	})
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	var promMetrics *telemetry.PromMetrics
	if cfg.Telemetry.PushgatewayURL != "" {
		promMetrics = telemetry.NewPromMetrics()
	}

	logger.Debug("Starting polis-probe",
		"targets", len(cfg.Targets),
		"format", cfg.Output.Format,
		"retries", cfg.Retry.MaxRetries,
	)

	prober := probe.NewProber(probe.Options{
		TLS:            cfg.ToTLSConfig(),
		Retry:          cfg.ToRetryConfig(),
		Logger:         logger,
		TracerProvider: otel.GetTracerProvider(),
		Metrics:        promMetrics,
	})
	summary := prober.RunAll(ctx, cfg.ToTargets())

	if err := probe.NewReporter(cmd.OutOrStdout(), cfg.Output.Format).Write(summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if promMetrics != nil {
		pushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		if err := promMetrics.Push(pushCtx, cfg.Telemetry.PushgatewayURL, cfg.Telemetry.Job); err != nil {
			logger.Warn("Failed to push metrics", "error", err)
		}
		cancel()
	}

	if cfg.Output.FailOnError && summary.Failed > 0 {
		return errProbeFailed
	}
	return nil
}
