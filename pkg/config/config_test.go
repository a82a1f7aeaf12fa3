package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 1)
	target := cfg.Targets[0]
	assert.Equal(t, "register", target.Name)
	assert.Equal(t, "https://localhost:3002/register", target.URL)
	assert.Equal(t, 5*time.Second, target.Timeout)
	assert.True(t, target.IsInsecure())

	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Equal(t, FormatText, cfg.Output.Format)
	assert.False(t, cfg.Output.FailOnError)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "polis-probe", cfg.Telemetry.Job)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
targets:
  - name: register
    url: https://localhost:3002/register
    timeout: 2s
  - url: https://api.internal.example.com/health
    insecure: false
    headers:
      X-Probe: "1"
retry:
  max_retries: 2
  initial_backoff: 50ms
tls:
  server_name: api.internal.example.com
output:
  format: json
  fail_on_error: true
logging:
  level: debug
telemetry:
  pushgateway_url: http://localhost:9091
  headers:
    authorization: Bearer token
  resource_tags:
    deployment.environment: staging
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, 2*time.Second, cfg.Targets[0].Timeout)
	assert.True(t, cfg.Targets[0].IsInsecure())

	assert.Equal(t, "health", cfg.Targets[1].Name)
	assert.Equal(t, DefaultTimeout, cfg.Targets[1].Timeout)
	assert.False(t, cfg.Targets[1].IsInsecure())
	assert.Equal(t, map[string]string{"X-Probe": "1"}, cfg.Targets[1].Headers)

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxBackoff)
	assert.Equal(t, "api.internal.example.com", cfg.TLS.ServerName)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.True(t, cfg.Output.FailOnError)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
	assert.Equal(t, "http://localhost:9091", cfg.Telemetry.PushgatewayURL)
	assert.Equal(t, map[string]string{"authorization": "Bearer token"}, cfg.Telemetry.Headers)
	assert.Equal(t, map[string]string{"deployment.environment": "staging"}, cfg.Telemetry.ResourceTags)
}

func TestLoadUnvalidated_DefersValidation(t *testing.T) {
	path := writeConfig(t, "output:\n  format: yaml\n")

	_, err := Load(path)
	require.ErrorContains(t, err, "unsupported output format")

	cfg, err := LoadUnvalidated(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Output.Format)

	cfg.Output.Format = FormatJSON
	assert.NoError(t, cfg.Validate())
}

func TestApplyDefaults_QualifiesCollidingNames(t *testing.T) {
	cfg := &Config{Targets: []TargetConfig{
		{URL: "https://localhost:3002/register"},
		{URL: "https://staging.example.com/register"},
		{Name: "health", URL: "https://localhost:3002/health"},
		{URL: "https://prod.example.com/health"},
	}}

	cfg.ApplyDefaults()

	assert.Equal(t, "register", cfg.Targets[0].Name)
	assert.Equal(t, "staging.example.com/register", cfg.Targets[1].Name)
	assert.Equal(t, "health", cfg.Targets[2].Name)
	assert.Equal(t, "prod.example.com/health", cfg.Targets[3].Name)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "targets: [unterminated"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid target", func(t *testing.T) {
		_, err := Load(writeConfig(t, "targets:\n  - url: ftp://localhost/register\n"))
		assert.ErrorContains(t, err, "must use http or https")
	})
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLIS_PROBE_URL", "https://127.0.0.1:8443/ready")
	t.Setenv("POLIS_PROBE_TIMEOUT", "750ms")
	t.Setenv("POLIS_PROBE_INSECURE", "false")
	t.Setenv("POLIS_PROBE_LOG_LEVEL", "debug")
	t.Setenv("POLIS_PROBE_OTLP_ENDPOINT", "localhost:4317")
	t.Setenv("POLIS_PROBE_PUSHGATEWAY", "http://localhost:9091")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "ready", cfg.Targets[0].Name)
	assert.Equal(t, "https://127.0.0.1:8443/ready", cfg.Targets[0].URL)
	assert.Equal(t, 750*time.Millisecond, cfg.Targets[0].Timeout)
	assert.False(t, cfg.Targets[0].IsInsecure())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "http://localhost:9091", cfg.Telemetry.PushgatewayURL)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("POLIS_PROBE_TIMEOUT", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "POLIS_PROBE_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(*Config) {}, ""},
		{"no targets", func(c *Config) { c.Targets = nil }, "at least one target"},
		{"empty url", func(c *Config) { c.Targets[0].URL = "" }, "url is required"},
		{"no host", func(c *Config) { c.Targets[0].URL = "https:///register" }, "has no host"},
		{"zero timeout", func(c *Config) { c.Targets[0].Timeout = 0 }, "timeout must be positive"},
		{"duplicate names", func(c *Config) { c.Targets = append(c.Targets, c.Targets[0]) }, "duplicate target name"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"backoff inverted", func(c *Config) {
			c.Retry.InitialBackoff = 10 * time.Second
			c.Retry.MaxBackoff = time.Second
		}, "exceeds max backoff"},
		{"bad format", func(c *Config) { c.Output.Format = "yaml" }, "unsupported output format"},
		{"relative ca", func(c *Config) { c.TLS.CAFile = "certs/ca.pem" }, "absolute path"},
		{"bad pushgateway", func(c *Config) { c.Telemetry.PushgatewayURL = "localhost:9091" }, "pushgateway_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSetSingleURL_KeepsTimeoutAndTrust(t *testing.T) {
	cfg := Default()
	cfg.SetTimeout(time.Second)
	cfg.SetInsecure(false)

	cfg.SetSingleURL("https://localhost:9443")

	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "localhost:9443", cfg.Targets[0].Name)
	assert.Equal(t, time.Second, cfg.Targets[0].Timeout)
	assert.False(t, cfg.Targets[0].IsInsecure())
}
