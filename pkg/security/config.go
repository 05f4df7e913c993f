// Package security provides the TLS settings shared by broker connections
package security

// TLSConfig holds TLS configuration for the NATS client connection.
// The system CA bundle is always trusted; CAFiles are ADDITIONAL trusted CAs.
type TLSConfig struct {
	Enabled    bool     `json:"enabled"               yaml:"enabled"`
	CAFiles    []string `json:"ca_files,omitempty"    yaml:"ca_files,omitempty"`
	ServerName string   `json:"server_name,omitempty" yaml:"server_name,omitempty"`

	// "1.2" (default) or "1.3"
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"`

	// DEV/TEST ONLY
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`

	// mTLS client certificate, both or neither
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"  yaml:"key_file,omitempty"`
}

// MTLS reports whether a client certificate is configured.
func (c TLSConfig) MTLS() bool {
	return c.CertFile != "" || c.KeyFile != ""
}
