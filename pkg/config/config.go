// Package config provides configuration structures and loading logic for the probe.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultURL is the endpoint probed when nothing else is configured.
	DefaultURL = "https://localhost:3002/register"
	// DefaultTimeout bounds a single probe request.
	DefaultTimeout = 5 * time.Second

	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the complete probe configuration.
type Config struct {
	Targets   []TargetConfig  `yaml:"targets"`
	Retry     RetryConfig     `yaml:"retry"`
	TLS       TLSConfig       `yaml:"tls"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TargetConfig describes one endpoint to probe. Insecure defaults to true when unset.
type TargetConfig struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Timeout  time.Duration     `yaml:"timeout"`
	Insecure *bool             `yaml:"insecure,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// IsInsecure reports whether certificate verification is skipped for the target.
func (t TargetConfig) IsInsecure() bool {
	return t.Insecure == nil || *t.Insecure
}

// RetryConfig holds retry settings. Zero retries means a single attempt.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Jitter         bool          `yaml:"jitter"`
}

// TLSConfig holds client TLS material shared by all targets.
type TLSConfig struct {
	CAFile              string `yaml:"ca_file"`
	CertFile            string `yaml:"cert_file"`
	KeyFile             string `yaml:"key_file"`
	ServerName          string `yaml:"server_name"`
	AllowInsecureRemote bool   `yaml:"allow_insecure_remote"`
}

// OutputConfig controls result rendering and the exit status.
type OutputConfig struct {
	Format      string `yaml:"format"`
	FailOnError bool   `yaml:"fail_on_error"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry and Prometheus.
type TelemetryConfig struct {
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PushgatewayURL string            `yaml:"pushgateway_url"`
	Job            string            `yaml:"job"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	ResourceTags   map[string]string `yaml:"resource_tags,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Targets: []TargetConfig{DefaultTarget()},
		Retry: RetryConfig{
			MaxRetries:     0,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Jitter:         true,
		},
		Output: OutputConfig{
			Format: FormatText,
		},
		Logging: LoggingConfig{
			Level:  "error",
			Pretty: true,
		},
		Telemetry: TelemetryConfig{
			Job: "polis-probe",
		},
	}
}

// DefaultTarget returns the local registration endpoint target.
func DefaultTarget() TargetConfig {
	return TargetConfig{
		Name:    "register",
		URL:     DefaultURL,
		Timeout: DefaultTimeout,
	}
}

// Load reads configuration from a file, applies environment variable overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated is Load without the final validation, for callers that
// apply further overrides and validate afterwards.
func LoadUnvalidated(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is supplied by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("POLIS_PROBE_URL"); val != "" {
		cfg.SetSingleURL(val)
	}
	if val := os.Getenv("POLIS_PROBE_TIMEOUT"); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid POLIS_PROBE_TIMEOUT %q: %w", val, err)
		}
		cfg.SetTimeout(timeout)
	}
	if val := os.Getenv("POLIS_PROBE_INSECURE"); val != "" {
		insecure, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid POLIS_PROBE_INSECURE %q: %w", val, err)
		}
		cfg.SetInsecure(insecure)
	}
	if val := os.Getenv("POLIS_PROBE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("POLIS_PROBE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("POLIS_PROBE_PUSHGATEWAY"); val != "" {
		cfg.Telemetry.PushgatewayURL = val
	}
	return nil
}

// SetSingleURL replaces the target list with one target for rawURL, keeping
// the timeout and trust mode of the first configured target.
func (c *Config) SetSingleURL(rawURL string) {
	target := DefaultTarget()
	if len(c.Targets) > 0 {
		target.Timeout = c.Targets[0].Timeout
		target.Insecure = c.Targets[0].Insecure
	}
	target.URL = rawURL
	target.Name = targetName(rawURL)
	c.Targets = []TargetConfig{target}
}

// SetTimeout applies timeout to every target.
func (c *Config) SetTimeout(timeout time.Duration) {
	for i := range c.Targets {
		c.Targets[i].Timeout = timeout
	}
}

// SetInsecure applies the trust mode to every target.
func (c *Config) SetInsecure(insecure bool) {
	for i := range c.Targets {
		value := insecure
		c.Targets[i].Insecure = &value
	}
}

// ApplyDefaults fills unset per-target fields. A derived name that is already
// taken is qualified with the host.
func (c *Config) ApplyDefaults() {
	taken := make(map[string]bool, len(c.Targets))
	for _, target := range c.Targets {
		if target.Name != "" {
			taken[target.Name] = true
		}
	}
	for i := range c.Targets {
		if c.Targets[i].Timeout == 0 {
			c.Targets[i].Timeout = DefaultTimeout
		}
		if c.Targets[i].Name == "" {
			name := targetName(c.Targets[i].URL)
			if taken[name] {
				name = qualifiedTargetName(c.Targets[i].URL)
			}
			c.Targets[i].Name = name
			taken[name] = true
		}
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatText
	}
	if c.Telemetry.Job == "" {
		c.Telemetry.Job = "polis-probe"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, target := range c.Targets {
		if err := validateURL(target.URL); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if target.Timeout <= 0 {
			return fmt.Errorf("targets[%d]: timeout must be positive", i)
		}
		if seen[target.Name] {
			return fmt.Errorf("targets[%d]: duplicate target name %q", i, target.Name)
		}
		seen[target.Name] = true
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if err := c.ToRetryConfig().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	switch c.Output.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("unsupported output format %q (expected %s or %s)", c.Output.Format, FormatText, FormatJSON)
	}

	if c.TLS.CAFile != "" && !filepath.IsAbs(c.TLS.CAFile) {
		return fmt.Errorf("tls.ca_file must be an absolute path")
	}

	if c.Telemetry.PushgatewayURL != "" {
		if err := validateURL(c.Telemetry.PushgatewayURL); err != nil {
			return fmt.Errorf("telemetry.pushgateway_url: %w", err)
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// targetName derives a display name from the last path segment or the host.
func targetName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if segment := strings.Trim(u.Path, "/"); segment != "" {
		parts := strings.Split(segment, "/")
		return parts[len(parts)-1]
	}
	return u.Host
}

// qualifiedTargetName prefixes the derived name with the host.
func qualifiedTargetName(raw string) string {
	name := targetName(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || name == u.Host {
		return name
	}
	return u.Host + "/" + name
}
