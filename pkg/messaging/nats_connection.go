package messaging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fystack/walletd/pkg/config"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/nats-io/nats.go"
)

const (
	// Default certificate paths
	defaultCertsDir   = "certs"
	defaultClientCert = "client-cert.pem"
	defaultClientKey  = "client-key.pem"
	defaultCACert     = "rootCA.pem"
)

// GetNATSConnection connects to NATS. Production connections require mutual TLS.
func GetNATSConnection(environment string, natsCfg *config.NATsConfig) (*nats.Conn, error) {
	if natsCfg == nil || natsCfg.URL == "" {
		return nil, errors.New("nats url is not configured")
	}

	opts := []nats.Option{
		nats.Name("walletd"),
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed!")
		}),
	}

	if environment == config.Production {
		tlsOpts, err := buildTLSOptions(natsCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tlsOpts...)
	} else if natsCfg.Username != "" {
		opts = append(opts, nats.UserInfo(natsCfg.Username, natsCfg.Password))
	}

	return nats.Connect(natsCfg.URL, opts...)
}

func buildTLSOptions(natsCfg *config.NATsConfig) ([]nats.Option, error) {
	certPaths := getCertificatePaths(natsCfg)

	if err := validateCertificateFiles(certPaths); err != nil {
		return nil, err
	}

	return []nats.Option{
		nats.ClientCert(certPaths.ClientCert, certPaths.ClientKey),
		nats.RootCAs(certPaths.CACert),
		nats.UserInfo(natsCfg.Username, natsCfg.Password),
	}, nil
}

type certificatePaths struct {
	ClientCert string
	ClientKey  string
	CACert     string
}

// getCertificatePaths falls back to ./certs for anything not configured.
func getCertificatePaths(natsCfg *config.NATsConfig) certificatePaths {
	paths := certificatePaths{}

	if natsCfg.TLS != nil {
		paths.ClientCert = natsCfg.TLS.ClientCert
		paths.ClientKey = natsCfg.TLS.ClientKey
		paths.CACert = natsCfg.TLS.CACert
	}

	if paths.ClientCert == "" {
		paths.ClientCert = filepath.Join(".", defaultCertsDir, defaultClientCert)
	}
	if paths.ClientKey == "" {
		paths.ClientKey = filepath.Join(".", defaultCertsDir, defaultClientKey)
	}
	if paths.CACert == "" {
		paths.CACert = filepath.Join(".", defaultCertsDir, defaultCACert)
	}

	return paths
}

func validateCertificateFiles(paths certificatePaths) error {
	requiredFiles := map[string]string{
		"client certificate": paths.ClientCert,
		"client key":         paths.ClientKey,
		"CA certificate":     paths.CACert,
	}

	for name, path := range requiredFiles {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%s not found at %s", name, path)
		}
	}

	return nil
}
