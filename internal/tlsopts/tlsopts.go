// Package tlsopts builds *tls.Config values from the client/server SSL
// option groups (cert, key, ca, minimum version; there is no cipher-suite
// option). Standard library
// only: this is a single flat option struct with no validation policy of
// its own to source a library for.
package tlsopts

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Options is one side (client or server) of a TLS option group: a
// certificate/key pair, an optional CA bundle to verify the peer against,
// and the minimum accepted protocol version.
type Options struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	MinVersion string // "1.2" or "1.3"; empty means tls.VersionTLS12
}

// Empty reports whether no TLS option was set at all, letting a caller
// decide to run the transport in plaintext.
func (o Options) Empty() bool {
	return o.CertFile == "" && o.KeyFile == "" && o.CAFile == ""
}

// ServerConfig builds a *tls.Config suitable for transport/tcp.Listen. Both
// CertFile and KeyFile must be set.
func (o Options) ServerConfig() (*tls.Config, error) {
	if o.Empty() {
		return nil, nil
	}
	if o.CertFile == "" || o.KeyFile == "" {
		return nil, fmt.Errorf("tlsopts: server requires both cert and key")
	}
	cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsopts: loading server keypair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion(o.MinVersion),
	}

	if o.CAFile != "" {
		pool, err := loadCAPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// ClientConfig builds a *tls.Config suitable for transport/tcp.NewDialer. A
// bare CAFile with no cert/key is valid (server-auth only).
func (o Options) ClientConfig() (*tls.Config, error) {
	if o.Empty() {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: minVersion(o.MinVersion)}

	if o.CertFile != "" || o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tlsopts: loading client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if o.CAFile != "" {
		pool, err := loadCAPool(o.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsopts: reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tlsopts: no certificates parsed from %s", path)
	}
	return pool, nil
}

func minVersion(v string) uint16 {
	switch v {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
