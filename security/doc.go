// Package security holds the TLS settings applied to client connections.
//
//	cfg := security.TLSConfig{
//	    CAFile:     "/etc/nitai/ca.pem",
//	    MinVersion: "1.2",
//	    MaxVersion: "1.3",
//	}
//	tlsConfig, err := cfg.Build()
//
// Certificates for tests are generated by the tlstest subpackage.
package security
