// Package tls builds client TLS configuration for outbound probes and
// describes what a probed server presented during the handshake.
//
// The insecure trust mode used for local development is only honoured for
// loopback hosts unless the caller opts in explicitly. Request failures are
// classified into coarse kinds so logs and metrics can distinguish refused
// connections from timeouts and certificate problems.
package tls
