package tls

import (
	"crypto/tls"
	"crypto/x509"
	"math"
	"time"
)

// CertificateInfo summarises a certificate presented by a probed server.
type CertificateInfo struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	DNSNames           []string  `json:"dns_names,omitempty"`
	IPAddresses        []string  `json:"ip_addresses,omitempty"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	IsCA               bool      `json:"is_ca"`
	SelfSigned         bool      `json:"self_signed"`
	Expired            bool      `json:"expired"`
	NotYetValid        bool      `json:"not_yet_valid"`
	ExpiresInDays      int       `json:"expires_in_days"`
}

// ConnectionInfo describes the negotiated TLS session of a probe.
type ConnectionInfo struct {
	Version            string            `json:"version"`
	CipherSuite        string            `json:"cipher_suite"`
	ServerName         string            `json:"server_name,omitempty"`
	NegotiatedProtocol string            `json:"negotiated_protocol,omitempty"`
	DidResume          bool              `json:"did_resume"`
	PeerCertificates   []CertificateInfo `json:"peer_certificates,omitempty"`
}

// SummarizeConnection extracts the negotiated parameters and the peer chain
// from state. It returns nil for plaintext connections.
func SummarizeConnection(state *tls.ConnectionState, now time.Time) *ConnectionInfo {
	if state == nil {
		return nil
	}

	info := &ConnectionInfo{
		Version:            tls.VersionName(state.Version),
		CipherSuite:        tls.CipherSuiteName(state.CipherSuite),
		ServerName:         state.ServerName,
		NegotiatedProtocol: state.NegotiatedProtocol,
		DidResume:          state.DidResume,
	}

	for _, cert := range state.PeerCertificates {
		info.PeerCertificates = append(info.PeerCertificates, InspectCertificate(cert, now))
	}

	return info
}

// InspectCertificate summarises a single certificate relative to now.
func InspectCertificate(cert *x509.Certificate, now time.Time) CertificateInfo {
	info := CertificateInfo{
		Subject:            cert.Subject.String(),
		Issuer:             cert.Issuer.String(),
		SerialNumber:       cert.SerialNumber.String(),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		DNSNames:           cert.DNSNames,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		IsCA:               cert.IsCA,
		SelfSigned:         isSelfSigned(cert),
		Expired:            now.After(cert.NotAfter),
		NotYetValid:        now.Before(cert.NotBefore),
		ExpiresInDays:      int(math.Floor(cert.NotAfter.Sub(now).Hours() / 24)),
	}

	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}

	return info
}

// isSelfSigned checks if a certificate is self-signed
func isSelfSigned(cert *x509.Certificate) bool {
	if cert.Subject.String() != cert.Issuer.String() {
		return false
	}
	return cert.CheckSignatureFrom(cert) == nil
}
