package tls

import (
	"crypto/tls"
	"errors"
	"fmt"

	"mercator-hq/relay/pkg/config"
)

// ServerConfig builds the listener tls.Config. Certificates come from
// reloader, so renewals apply to new connections without a restart.
func ServerConfig(cfg config.TLSConfig, reloader *CertificateReloader) (*tls.Config, error) {
	if reloader == nil {
		return nil, errors.New("certificate reloader is required")
	}
	if reloader.GetCertificate() == nil {
		return nil, errors.New("certificate reloader has not loaded a certificate")
	}

	minVersion, err := parseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	// #nosec G402 - MinVersion is validated (TLS 1.0/1.1 rejected)
	return &tls.Config{
		GetCertificate: reloader.GetCertificateFunc(),
		MinVersion:     minVersion,
		CipherSuites:   cipherSuites(minVersion),
		NextProtos:     []string{"h2", "http/1.1"},
	}, nil
}

// parseTLSVersion converts a version string to a tls.Version constant.
// TLS 1.0 and 1.1 are not supported.
func parseTLSVersion(version string) (uint16, error) {
	switch version {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q (valid: 1.2, 1.3)", version)
	}
}

// cipherSuites returns the TLS 1.2 suites to offer. TLS 1.3 suites are not
// configurable in crypto/tls, so nil is returned for a 1.3 minimum.
func cipherSuites(minVersion uint16) []uint16 {
	if minVersion >= tls.VersionTLS13 {
		return nil
	}
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}
