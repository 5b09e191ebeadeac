package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// ACMEManager manages automatic TLS certificates from Let's Encrypt
type ACMEManager struct {
	manager *autocert.Manager
	domains []string
}

// NewACMEManager creates a new ACME manager
func NewACMEManager(email string, domains []string, cacheDir string) *ACMEManager {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      email,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	return &ACMEManager{
		manager: m,
		domains: domains,
	}
}

// Domains returns the list of configured domains
func (a *ACMEManager) Domains() []string {
	return a.domains
}

// TLSConfig returns the TLS configuration for the console listener
func (a *ACMEManager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: a.manager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// HTTPHandler returns the handler for the HTTP-01 ACME challenge
func (a *ACMEManager) HTTPHandler(fallback http.Handler) http.Handler {
	return a.manager.HTTPHandler(fallback)
}

// EnsureCertificates obtains or validates certificates for every configured
// domain at startup. The HTTP challenge listener must already be serving.
func (a *ACMEManager) EnsureCertificates(ctx context.Context) ([]CertificateInfo, error) {
	var results []CertificateInfo

	for _, domain := range a.domains {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		// A synthetic hello triggers fetch-or-renew through autocert.
		cert, err := a.manager.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
		if err != nil {
			return results, fmt.Errorf("failed to obtain certificate for %s: %w", domain, err)
		}
		if cert == nil || len(cert.Certificate) == 0 {
			continue
		}

		leaf := cert.Leaf
		if leaf == nil {
			leaf, err = x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				return results, fmt.Errorf("failed to parse certificate for %s: %w", domain, err)
			}
		}

		results = append(results, CertificateInfo{
			Subject:   leaf.Subject.CommonName,
			Issuer:    leaf.Issuer.CommonName,
			NotBefore: leaf.NotBefore,
			NotAfter:  leaf.NotAfter,
			DaysLeft:  int(time.Until(leaf.NotAfter).Hours() / 24),
			DNSNames:  leaf.DNSNames,
		})
	}

	return results, nil
}
