package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-probe/pkg/config"
)

func clearProbeEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"POLIS_PROBE_URL",
		"POLIS_PROBE_TIMEOUT",
		"POLIS_PROBE_INSECURE",
		"POLIS_PROBE_LOG_LEVEL",
		"POLIS_PROBE_OTLP_ENDPOINT",
		"POLIS_PROBE_PUSHGATEWAY",
	} {
		t.Setenv(name, "")
	}
}

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	clearProbeEnv(t)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func closedAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestParseCLIConfig(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected func(*testing.T, *CLIConfig)
	}{
		{
			name: "default values",
			args: []string{},
			expected: func(t *testing.T, cli *CLIConfig) {
				assert.Equal(t, config.DefaultURL, cli.URL)
				assert.Equal(t, config.DefaultTimeout, cli.Timeout)
				assert.True(t, cli.Insecure)
				assert.Equal(t, config.FormatText, cli.Output)
				assert.Equal(t, defaultLogLevel, cli.LogLevel)
				assert.Zero(t, cli.Retries)
				assert.False(t, cli.Changed["url"])
				assert.False(t, cli.Changed["timeout"])
			},
		},
		{
			name: "all flags set",
			args: []string{
				"--url", "https://localhost:9443/ready",
				"-t", "2s",
				"--insecure=false",
				"-o", "json",
				"--retries", "2",
				"--fail-on-error",
				"-l", "debug",
				"--server-name", "api.internal.example.com",
				"--pushgateway", "http://localhost:9091",
			},
			expected: func(t *testing.T, cli *CLIConfig) {
				assert.Equal(t, "https://localhost:9443/ready", cli.URL)
				assert.Equal(t, 2*time.Second, cli.Timeout)
				assert.False(t, cli.Insecure)
				assert.Equal(t, "json", cli.Output)
				assert.Equal(t, 2, cli.Retries)
				assert.True(t, cli.FailOnError)
				assert.Equal(t, "debug", cli.LogLevel)
				assert.Equal(t, "api.internal.example.com", cli.ServerName)
				assert.Equal(t, "http://localhost:9091", cli.Pushgateway)
				assert.True(t, cli.Changed["url"])
				assert.True(t, cli.Changed["insecure"])
				assert.False(t, cli.Changed["ca-file"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			cli, err := parseCLIConfig(cmd, nil)
			require.NoError(t, err)
			tt.expected(t, cli)
		})
	}
}

func TestBuildProbeConfig_FlagsOverride(t *testing.T) {
	clearProbeEnv(t)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--url", "https://127.0.0.1:8443/health", "--timeout", "750ms", "--output", "json"}))
	cli, err := parseCLIConfig(cmd, nil)
	require.NoError(t, err)

	cfg, err := buildProbeConfig(cli)
	require.NoError(t, err)

	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "health", cfg.Targets[0].Name)
	assert.Equal(t, 750*time.Millisecond, cfg.Targets[0].Timeout)
	assert.True(t, cfg.Targets[0].IsInsecure())
	assert.Equal(t, config.FormatJSON, cfg.Output.Format)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestBuildProbeConfig_UnchangedFlagsKeepEnvironment(t *testing.T) {
	clearProbeEnv(t)
	t.Setenv("POLIS_PROBE_URL", "https://127.0.0.1:8443/ready")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	cli, err := parseCLIConfig(cmd, nil)
	require.NoError(t, err)

	cfg, err := buildProbeConfig(cli)
	require.NoError(t, err)
	assert.Equal(t, "https://127.0.0.1:8443/ready", cfg.Targets[0].URL)
}

func TestBuildProbeConfig_FlagReplacesInvalidEnvironment(t *testing.T) {
	clearProbeEnv(t)
	t.Setenv("POLIS_PROBE_URL", "localhost:3002")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--url", "https://localhost:3002/register"}))
	cli, err := parseCLIConfig(cmd, nil)
	require.NoError(t, err)

	cfg, err := buildProbeConfig(cli)
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "https://localhost:3002/register", cfg.Targets[0].URL)
}

func TestBuildProbeConfig_FlagReplacesInvalidFileValue(t *testing.T) {
	clearProbeEnv(t)
	path := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  format: yaml\n"), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "-o", "json"}))
	cli, err := parseCLIConfig(cmd, nil)
	require.NoError(t, err)

	cfg, err := buildProbeConfig(cli)
	require.NoError(t, err)
	assert.Equal(t, config.FormatJSON, cfg.Output.Format)
}

func TestBuildProbeConfig_InvalidEnvironmentWithoutOverride(t *testing.T) {
	clearProbeEnv(t)
	t.Setenv("POLIS_PROBE_URL", "localhost:3002")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	cli, err := parseCLIConfig(cmd, nil)
	require.NoError(t, err)

	_, err = buildProbeConfig(cli)
	assert.ErrorContains(t, err, "must use http or https")
}

func TestBuildProbeConfig_InvalidFlags(t *testing.T) {
	clearProbeEnv(t)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--output", "yaml"}))
	cli, err := parseCLIConfig(cmd, nil)
	require.NoError(t, err)

	_, err = buildProbeConfig(cli)
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestRunProbe_PrintsStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/register", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	stdout, stderr, err := executeRoot(t, "--url", srv.URL+"/register")
	require.NoError(t, err)

	assert.Equal(t, "Status: 201\nHTTPS endpoint is responding\n", stdout)
	assert.Empty(t, stderr)
}

func TestRunProbe_ErrorExitsZeroByDefault(t *testing.T) {
	stdout, _, err := executeRoot(t, "--url", "https://"+closedAddr(t)+"/register", "--timeout", "2s")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "Error: "), "stdout: %q", stdout)
	assert.NotContains(t, stdout, "Status:")
}

func TestRunProbe_FailOnError(t *testing.T) {
	stdout, _, err := executeRoot(t, "--url", "https://"+closedAddr(t)+"/register", "--fail-on-error")

	require.ErrorIs(t, err, errProbeFailed)
	assert.Contains(t, stdout, "Error: ")
}

func TestRunProbe_JSONOutput(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	stdout, _, err := executeRoot(t, "--url", srv.URL+"/register", "-o", "json")
	require.NoError(t, err)

	var doc struct {
		Total   int `json:"total"`
		Passed  int `json:"passed"`
		Results []struct {
			OK         bool   `json:"ok"`
			StatusCode int    `json:"status_code"`
			Target     string `json:"target"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, 1, doc.Total)
	assert.Equal(t, 1, doc.Passed)
	require.Len(t, doc.Results, 1)
	assert.True(t, doc.Results[0].OK)
	assert.Equal(t, http.StatusNotFound, doc.Results[0].StatusCode)
	assert.Equal(t, "register", doc.Results[0].Target)
}

func TestRunProbe_PushesMetrics(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	stdout, _, err := executeRoot(t, "--url", target.URL+"/register", "--pushgateway", gateway.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Status: 200")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "PUT /metrics/job/polis-probe", paths[0])
	assert.NotEmpty(t, body)
}

func TestRunProbe_PushFailureDoesNotChangeOutput(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	stdout, stderr, err := executeRoot(t,
		"--url", srv.URL+"/register",
		"--pushgateway", "http://"+closedAddr(t),
		"--log-level", "warn",
	)
	require.NoError(t, err)

	assert.Equal(t, "Status: 200\nHTTPS endpoint is responding\n", stdout)
	assert.Contains(t, stderr, "Failed to push metrics")
}

func TestRunProbe_RejectsArguments(t *testing.T) {
	_, _, err := executeRoot(t, "extra")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeRoot(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "polis-probe version dev\n", stdout)
}
