package config

import (
	"github.com/polisai/polis-probe/internal/governance"
	probetls "github.com/polisai/polis-probe/internal/tls"
	"github.com/polisai/polis-probe/pkg/probe"
)

// ToTargets converts the configured targets into probe targets.
func (c *Config) ToTargets() []probe.Target {
	targets := make([]probe.Target, 0, len(c.Targets))
	for _, tc := range c.Targets {
		var headers map[string]string
		if len(tc.Headers) > 0 {
			headers = make(map[string]string, len(tc.Headers))
			for k, v := range tc.Headers {
				headers[k] = v
			}
		}
		targets = append(targets, probe.Target{
			Name:     tc.Name,
			URL:      tc.URL,
			Timeout:  tc.Timeout,
			Insecure: tc.IsInsecure(),
			Headers:  headers,
		})
	}
	return targets
}

// ToTLSConfig converts the shared TLS section into the client TLS config.
// InsecureSkipVerify is decided per target by the prober.
func (c *Config) ToTLSConfig() probetls.Config {
	return probetls.Config{
		CAFile:              c.TLS.CAFile,
		CertFile:            c.TLS.CertFile,
		KeyFile:             c.TLS.KeyFile,
		ServerName:          c.TLS.ServerName,
		AllowInsecureRemote: c.TLS.AllowInsecureRemote,
	}
}

// ToRetryConfig converts the retry section, keeping the default multiplier and
// retryable status codes.
func (c *Config) ToRetryConfig() governance.RetryConfig {
	rc := governance.DefaultRetryConfig()
	rc.MaxRetries = c.Retry.MaxRetries
	if c.Retry.InitialBackoff > 0 {
		rc.InitialBackoff = c.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff > 0 {
		rc.MaxBackoff = c.Retry.MaxBackoff
	}
	rc.Jitter = c.Retry.Jitter
	return rc
}
