package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// TLSConfig holds the client-side TLS settings of a Client.
type TLSConfig struct {
	// SkipVerify disables server certificate verification.
	SkipVerify bool `yaml:"skip_verify" mapstructure:"skip_verify"`

	// CAFile is a PEM bundle trusted in place of the system roots.
	CAFile string `yaml:"ca_file" mapstructure:"ca_file"`

	// CertFile and KeyFile present a client certificate (mTLS).
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`

	// ServerName overrides the name used for SNI and verification.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`

	// MinVersion and MaxVersion bound the negotiated protocol ("1.0" to "1.3").
	// MinVersion defaults to 1.2; an empty MaxVersion leaves the stdlib maximum.
	MinVersion string `yaml:"min_version" mapstructure:"min_version"`
	MaxVersion string `yaml:"max_version" mapstructure:"max_version"`
}

var versions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// ParseVersion converts "1.2", "TLS1.2", "tls_1_2" and similar spellings
// into a crypto/tls version constant.
func ParseVersion(s string) (uint16, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "tls")
	norm = strings.TrimLeft(norm, " _-v")
	norm = strings.ReplaceAll(norm, "_", ".")
	if v, ok := versions[norm]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("security/tls: unknown TLS version %q", s)
}

// VersionName returns the "1.x" spelling of a crypto/tls version constant.
func VersionName(v uint16) string {
	for name, c := range versions {
		if c == v {
			return name
		}
	}
	return ""
}

// Build creates a *tls.Config from the configuration. A nil receiver
// yields nil so callers fall back to the transport default.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		InsecureSkipVerify: c.SkipVerify, //nolint:gosec // opt-in via configuration
		ServerName:         c.ServerName,
		MinVersion:         tls.VersionTLS12,
	}
	if c.MinVersion != "" {
		cfg.MinVersion, _ = ParseVersion(c.MinVersion)
	}
	if c.MaxVersion != "" {
		cfg.MaxVersion, _ = ParseVersion(c.MaxVersion)
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("security/tls: failed to read CA file: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("security/tls: failed to parse CA certificate")
		}
		cfg.RootCAs = roots
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("security/tls: failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Validate checks that the TLS configuration is consistent.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("security/tls: both cert_file and key_file must be provided together")
	}

	var minV, maxV uint16
	var err error
	if c.MinVersion != "" {
		if minV, err = ParseVersion(c.MinVersion); err != nil {
			return err
		}
	}
	if c.MaxVersion != "" {
		if maxV, err = ParseVersion(c.MaxVersion); err != nil {
			return err
		}
	}
	if minV != 0 && maxV != 0 && minV > maxV {
		return fmt.Errorf("security/tls: min_version %s is above max_version %s", c.MinVersion, c.MaxVersion)
	}
	return nil
}
