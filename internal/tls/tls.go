package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Config contains client TLS settings for outbound probes.
type Config struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	ServerName string
	// InsecureSkipVerify accepts any server certificate and skips hostname
	// checks. Only loopback targets may use it unless AllowInsecureRemote is set.
	InsecureSkipVerify  bool
	AllowInsecureRemote bool
}

// BuildClient constructs a TLS configuration for a probe against host.
func BuildClient(cfg Config, host string) (*tls.Config, error) {
	if cfg.InsecureSkipVerify && !cfg.AllowInsecureRemote && !IsLoopbackHost(host) {
		return nil, NewInsecureRemoteError(host)
	}

	clientConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerName,
		// #nosec G402 - gated above to loopback hosts or an explicit opt-in
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, NewConfigValidationError("cert_file/key_file", cfg.CertFile+"/"+cfg.KeyFile,
				"both cert_file and key_file are required when supplying client certificates")
		}
		certificate, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, NewCertificateLoadError(cfg.CertFile, cfg.KeyFile, err)
		}
		clientConfig.Certificates = []tls.Certificate{certificate}
	}

	if cfg.CAFile != "" {
		caPool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		clientConfig.RootCAs = caPool
	}

	return clientConfig, nil
}

// IsLoopbackHost reports whether host names the local machine.
func IsLoopbackHost(host string) bool {
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func loadCertPool(path string) (*x509.CertPool, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, NewConfigValidationError("ca_file", path, "ca bundle path must be absolute")
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewFileNotFoundError(cleanPath)
		}
		return nil, NewTLSErrorWithCause(ErrorTypeFileAccess, "read CA bundle", err).
			WithContext("file_path", cleanPath)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, NewTLSError(ErrorTypeCertificateParsing, "no certificates found in CA bundle").
			WithContext("file_path", cleanPath)
	}
	return pool, nil
}
