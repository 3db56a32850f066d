package pki

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
)

// ManagementTLSConfig builds the TLS config for talking to a management
// center. caBundlePath points at a PEM file for servers behind a private
// CA; insecure disables verification for lab setups.
func ManagementTLSConfig(caBundlePath string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure,
	}

	if caBundlePath != "" {
		pemData, err := os.ReadFile(caBundlePath)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in %s", caBundlePath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// ServerTLSConfig creates a TLS config for the RAMPART server that requires
// client certificates signed by the given CA (mutual TLS).
func ServerTLSConfig(serverBundle *CertBundle, caCertPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(serverBundle.CertPEM, serverBundle.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCertPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig creates a TLS config for operators connecting to the
// RAMPART server. The client presents its certificate and verifies the
// server against the CA.
func ClientTLSConfig(clientBundle *CertBundle, caCertPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(clientBundle.CertPEM, clientBundle.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCertPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ServerTransportCredentials returns gRPC transport credentials for a server with mTLS.
func ServerTransportCredentials(serverBundle *CertBundle, caCertPEM []byte) (credentials.TransportCredentials, error) {
	tlsCfg, err := ServerTLSConfig(serverBundle, caCertPEM)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsCfg), nil
}

// ClientTransportCredentials returns gRPC transport credentials for a client with mTLS.
func ClientTransportCredentials(clientBundle *CertBundle, caCertPEM []byte) (credentials.TransportCredentials, error) {
	tlsCfg, err := ClientTLSConfig(clientBundle, caCertPEM)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsCfg), nil
}
