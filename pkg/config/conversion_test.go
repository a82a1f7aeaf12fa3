package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTargets(t *testing.T) {
	secure := false
	cfg := Default()
	cfg.Targets = append(cfg.Targets, TargetConfig{
		Name:     "health",
		URL:      "https://api.internal.example.com/health",
		Timeout:  time.Second,
		Insecure: &secure,
		Headers:  map[string]string{"X-Probe": "1"},
	})

	targets := cfg.ToTargets()
	require.Len(t, targets, 2)

	assert.Equal(t, "register", targets[0].Name)
	assert.Equal(t, DefaultURL, targets[0].URL)
	assert.Equal(t, DefaultTimeout, targets[0].Timeout)
	assert.True(t, targets[0].Insecure)
	assert.Nil(t, targets[0].Headers)

	assert.False(t, targets[1].Insecure)
	assert.Equal(t, "1", targets[1].Headers["X-Probe"])

	cfg.Targets[1].Headers["X-Probe"] = "2"
	assert.Equal(t, "1", targets[1].Headers["X-Probe"], "headers must be copied")
}

func TestToTLSConfig(t *testing.T) {
	cfg := Default()
	cfg.TLS = TLSConfig{
		CAFile:              "/etc/ssl/ca.pem",
		ServerName:          "api.internal.example.com",
		AllowInsecureRemote: true,
	}

	tlsCfg := cfg.ToTLSConfig()
	assert.Equal(t, "/etc/ssl/ca.pem", tlsCfg.CAFile)
	assert.Equal(t, "api.internal.example.com", tlsCfg.ServerName)
	assert.True(t, tlsCfg.AllowInsecureRemote)
	assert.False(t, tlsCfg.InsecureSkipVerify)
}

func TestToRetryConfig(t *testing.T) {
	cfg := Default()
	cfg.Retry = RetryConfig{MaxRetries: 2, InitialBackoff: 50 * time.Millisecond}

	rc := cfg.ToRetryConfig()
	assert.Equal(t, 2, rc.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, rc.InitialBackoff)
	assert.Equal(t, 5*time.Second, rc.MaxBackoff)
	assert.False(t, rc.Jitter)
	assert.InDelta(t, 2.0, rc.BackoffMultiplier, 0)
	assert.True(t, rc.RetryableStatusCodes[http.StatusServiceUnavailable])
}
