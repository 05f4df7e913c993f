// Package tlsutil builds crypto/tls client configurations from security settings
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/pkg/security"
)

// LoadClientTLSConfig creates a tls.Config for broker clients.
// Always uses system CA bundle first, CAFiles are additional trusted CAs.
// A configured client certificate enables mTLS.
func LoadClientTLSConfig(cfg security.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
		ServerName: cfg.ServerName,
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// If system pool unavailable, create empty pool
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLSConfig",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}
	tlsConfig.RootCAs = rootCAs

	// Note: Setting this is intentional via config
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.MTLS() {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "LoadClientTLSConfig",
				"client certificate needs both cert_file and key_file")
		}
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	return tlsConfig, nil
}

// parseTLSVersion converts version string to crypto/tls constant
// Returns tls.VersionTLS12 if empty or invalid
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS12
	}
}
