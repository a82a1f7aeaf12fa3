package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"syscall"
)

// TLSErrorType represents different categories of TLS configuration errors
type TLSErrorType string

const (
	// Configuration errors
	ErrorTypeConfigValidation TLSErrorType = "config_validation"
	ErrorTypeInsecureRemote   TLSErrorType = "insecure_remote"

	// Certificate errors
	ErrorTypeCertificateLoad    TLSErrorType = "certificate_load"
	ErrorTypeCertificateParsing TLSErrorType = "certificate_parsing"

	// File system errors
	ErrorTypeFileAccess   TLSErrorType = "file_access"
	ErrorTypeFileNotFound TLSErrorType = "file_not_found"
)

// TLSError represents a structured TLS error with context
type TLSError struct {
	Type        TLSErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Suggestions []string
}

// Error implements the error interface
func (e *TLSError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", string(e.Type)))
	parts = append(parts, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for key := range e.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, key := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", key, e.Context[key]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying error for error unwrapping
func (e *TLSError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *TLSError) WithContext(key string, value interface{}) *TLSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error
func (e *TLSError) WithSuggestion(suggestion string) *TLSError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// GetDetailedMessage returns a detailed error message with suggestions
func (e *TLSError) GetDetailedMessage() string {
	message := e.Error()

	if len(e.Suggestions) > 0 {
		message += "\n\nSuggestions:"
		for i, suggestion := range e.Suggestions {
			message += fmt.Sprintf("\n  %d. %s", i+1, suggestion)
		}
	}

	return message
}

// NewTLSError creates a new TLS error with the specified type and message
func NewTLSError(errorType TLSErrorType, message string) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewTLSErrorWithCause creates a new TLS error with an underlying cause
func NewTLSErrorWithCause(errorType TLSErrorType, message string, cause error) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewConfigValidationError(field string, value interface{}, reason string) *TLSError {
	return NewTLSError(ErrorTypeConfigValidation, fmt.Sprintf("invalid configuration field '%s'", field)).
		WithContext("field", field).
		WithContext("value", value).
		WithContext("reason", reason).
		WithSuggestion(fmt.Sprintf("Check the '%s' field in your TLS configuration", field))
}

func NewInsecureRemoteError(host string) *TLSError {
	return NewTLSError(ErrorTypeInsecureRemote, "insecure certificate verification is only permitted for loopback hosts").
		WithContext("host", host).
		WithSuggestion("Pass --ca-file with the server's CA bundle to verify the certificate").
		WithSuggestion("Pass --allow-insecure-remote to accept any certificate from a non-local host")
}

func NewCertificateLoadError(certFile, keyFile string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeCertificateLoad, "failed to load client certificate", cause).
		WithContext("cert_file", certFile).
		WithContext("key_file", keyFile).
		WithSuggestion("Verify the certificate and key files exist and are readable").
		WithSuggestion("Ensure the certificate and key are in PEM format and match")
}

func NewFileNotFoundError(filePath string) *TLSError {
	return NewTLSError(ErrorTypeFileNotFound, "file not found").
		WithContext("file_path", filePath).
		WithSuggestion("Verify the file path is correct")
}

// IsConfigurationError reports whether err came from building the client TLS config.
func IsConfigurationError(err error) bool {
	var tlsErr *TLSError
	return errors.As(err, &tlsErr)
}

// FailureKind is a coarse classification of a failed probe request.
type FailureKind string

const (
	FailureNone              FailureKind = "none"
	FailureCanceled          FailureKind = "canceled"
	FailureTimeout           FailureKind = "timeout"
	FailureDNS               FailureKind = "dns"
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureTLS               FailureKind = "tls"
	FailureConfig            FailureKind = "config"
	FailureOther             FailureKind = "other"
)

// ClassifyError maps a request error onto a FailureKind.
func ClassifyError(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return FailureConnectionRefused
	}

	if isTLSFailure(err) {
		return FailureTLS
	}

	if IsConfigurationError(err) {
		return FailureConfig
	}

	return FailureOther
}

// errPlaintextServer is the text net/http reports when an https URL reaches a
// plaintext HTTP server. The transport drops the tls.RecordHeaderError.
const errPlaintextServer = "server gave HTTP response to HTTPS client"

func isTLSFailure(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		strings.Contains(err.Error(), errPlaintextServer)
}
