package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Options selects where the listener certificate comes from.
type Options struct {
	CertFile string
	KeyFile  string
	// AutoGenerate creates a self-signed certificate. When CertFile and
	// KeyFile are set it is written there on first use and reused after.
	AutoGenerate bool
	// Hosts are the names of a generated certificate.
	Hosts []string
}

// ErrNoCertificate is returned when neither files nor AutoGenerate are set.
var ErrNoCertificate = errors.New("tls: no certificate configured")

// ServerConfig returns a TLS 1.2+ server configuration for o.
func ServerConfig(o Options) (*tls.Config, error) {
	cert, err := loadOrGenerate(o)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func loadOrGenerate(o Options) (tls.Certificate, error) {
	haveFiles := o.CertFile != "" && o.KeyFile != ""
	if !o.AutoGenerate {
		if !haveFiles {
			return tls.Certificate{}, ErrNoCertificate
		}
		return loadKeyPair(o.CertFile, o.KeyFile)
	}

	if haveFiles && exists(o.CertFile) && exists(o.KeyFile) {
		return loadKeyPair(o.CertFile, o.KeyFile)
	}

	gen, err := SelfSigned(o.Hosts, 0)
	if err != nil {
		return tls.Certificate{}, err
	}
	if haveFiles {
		if err := Save(gen, o.CertFile, o.KeyFile); err != nil {
			return tls.Certificate{}, err
		}
	}
	return tls.X509KeyPair(gen.CertPEM, gen.KeyPEM)
}

func loadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: load key pair: %w", err)
	}
	return cert, nil
}

// Save writes gen to certPath and keyPath. The key file is private to the
// owner.
func Save(gen *Generated, certPath, keyPath string) error {
	if gen == nil {
		return errors.New("tls: certificate cannot be nil")
	}
	for _, p := range []string{certPath, keyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("tls: create directory: %w", err)
		}
	}
	if err := os.WriteFile(certPath, gen.CertPEM, 0o644); err != nil {
		return fmt.Errorf("tls: write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, gen.KeyPEM, 0o600); err != nil {
		_ = os.Remove(certPath)
		return fmt.Errorf("tls: write key: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
