// Copyright 2025 The haproxy-operator authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tlsrelation manages the certificate lifecycle against the
// certificates integration: per-hostname private keys persisted in a secret
// store, CSR submission and renewal, and installation of issued certificate
// bundles into the proxy's certificate directory.
package tlsrelation

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dimaqq/haproxy-operator/pkg/haproxy"
	"github.com/dimaqq/haproxy-operator/pkg/relation"
	"github.com/dimaqq/haproxy-operator/pkg/state"
)

const (
	// requestsKey is the local unit databag key carrying our outstanding
	// certificate signing requests.
	requestsKey = "certificate_signing_requests"

	// certificatesKey is the provider application databag key carrying the
	// issued certificates.
	certificatesKey = "certificates"

	passwordLength  = 12
	privateKeyBits  = 2048
	secretKeyField  = "private-key"
	secretPassField = "password"
)

// KeyPair is a hostname's private key and its password, both persisted in
// the secret store.
type KeyPair struct {
	PrivateKey string
	Password   string
}

// certificateRequest is one entry of the requirer's CSR list.
type certificateRequest struct {
	CSR       string `json:"certificate_signing_request"`
	IsCA      bool   `json:"ca"`
	RequestID string `json:"request_id,omitempty"`
}

// ProviderCertificate is one certificate issued by the CA, as published in
// the provider's application databag.
type ProviderCertificate struct {
	Certificate string   `json:"certificate"`
	CA          string   `json:"ca"`
	Chain       []string `json:"chain"`
	CSR         string   `json:"certificate_signing_request"`

	// Hostname is the certificate's common name, filled in when the entry
	// is read back from the databag.
	Hostname string `json:"-"`
}

// Store drives a single hostname's certificate through its lifecycle:
// key generation, CSR submission, installation of the issued bundle,
// renewal and revocation.
type Store struct {
	Model   relation.Model
	Secrets SecretStore

	// CertsDir defaults to the proxy's certificate directory.
	CertsDir string

	// WriteFile installs a pem bundle with proxy-user ownership. Replaced
	// in tests.
	WriteFile func(path, content string, mode os.FileMode) error

	// OnBundleWrite, when set, is called after each bundle installed on
	// disk. The operator hooks its certificate-write counter in here.
	OnBundleWrite func(hostname string)

	Logger *slog.Logger
}

// NewStore returns a Store writing bundles to the proxy certificate
// directory.
func NewStore(model relation.Model, secrets SecretStore) *Store {
	return &Store{
		Model:     model,
		Secrets:   secrets,
		CertsDir:  haproxy.DefaultCertsDir,
		WriteFile: haproxy.RenderFile,
		Logger:    slog.Default(),
	}
}

func (s *Store) relation() *relation.Relation {
	relations := s.Model.Relations(state.CertificatesRelation)
	if len(relations) == 0 {
		return nil
	}
	return relations[0]
}

func secretLabel(hostname string) string {
	return "private-key-" + hostname
}

// EnsureKeyPair fetches the hostname's key pair from the secret store,
// generating and persisting a fresh one when none exists. Idempotent: once
// a key exists it is never silently regenerated.
func (s *Store) EnsureKeyPair(hostname string) (KeyPair, error) {
	label := secretLabel(hostname)
	content, err := s.Secrets.Get(label)
	if err == nil {
		key, ok := content[secretKeyField]
		if !ok || key == "" {
			return KeyPair{}, fmt.Errorf("%w: secret %s", ErrMissingPrivateKey, label)
		}
		return KeyPair{PrivateKey: key, Password: content[secretPassField]}, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return KeyPair{}, err
	}

	key, err := rsa.GenerateKey(rand.Reader, privateKeyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating private key: %w", err)
	}
	pair := KeyPair{
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})),
	}
	pair.Password, err = randomPassword(passwordLength)
	if err != nil {
		return KeyPair{}, err
	}
	err = s.Secrets.Set(label, map[string]string{
		secretKeyField:  pair.PrivateKey,
		secretPassField: pair.Password,
	})
	if err != nil {
		return KeyPair{}, err
	}
	s.Logger.Info("generated private key", "hostname", hostname)
	return pair, nil
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomPassword(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// RequestCertificate ensures a key pair exists for hostname and submits a
// CSR to the certificates relation. Submitting for a hostname that already
// has an outstanding request is a no-op.
func (s *Store) RequestCertificate(hostname string) error {
	rel := s.relation()
	if rel == nil {
		return fmt.Errorf("%w: certificates relation not established", state.ErrTLSNotReady)
	}
	pair, err := s.EnsureKeyPair(hostname)
	if err != nil {
		return err
	}

	requests, err := s.certificateRequests(rel)
	if err != nil {
		return err
	}
	for _, request := range requests {
		name, err := csrCommonName(request.CSR)
		if err != nil {
			continue
		}
		if name == hostname {
			return nil
		}
	}

	csr, err := generateCSR(hostname, pair.PrivateKey)
	if err != nil {
		return err
	}
	requests = append(requests, certificateRequest{CSR: csr, RequestID: uuid.NewString()})
	return s.saveRequests(rel, requests)
}

// AssignedCertificates lists the certificates the CA has issued against our
// outstanding requests, keyed by the certificate's common name. Implements
// the certificate source consumed during state construction.
func (s *Store) AssignedCertificates() ([]state.AssignedCertificate, error) {
	provided, err := s.providerCertificates()
	if err != nil {
		return nil, err
	}
	assigned := make([]state.AssignedCertificate, 0, len(provided))
	for _, cert := range provided {
		assigned = append(assigned, state.AssignedCertificate{
			Hostname:    cert.Hostname,
			Certificate: cert.Certificate,
			Chain:       cert.Chain,
		})
	}
	return assigned, nil
}

// CertificateAvailable installs every issued certificate bundle into the
// certificate directory. A bundle is `certificate + chain + private key`
// joined by newlines; the file is only rewritten when its content differs,
// so an unchanged issuance never triggers a proxy reload.
func (s *Store) CertificateAvailable(tls state.TLSInformation) error {
	rel := s.relation()
	if rel == nil {
		return fmt.Errorf("%w: certificates relation not established", state.ErrTLSNotReady)
	}
	requests, err := s.certificateRequests(rel)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		s.Logger.Warn("no certificate was requested, skipping installation")
		return nil
	}
	if err := os.MkdirAll(s.CertsDir, 0o755); err != nil {
		return fmt.Errorf("creating certificate directory: %w", err)
	}

	hostnames := make([]string, 0, len(tls.Certificates))
	for hostname := range tls.Certificates {
		hostnames = append(hostnames, hostname)
	}
	sort.Strings(hostnames)

	for _, hostname := range hostnames {
		bundle := tls.Certificates[hostname]
		pair, err := s.EnsureKeyPair(hostname)
		if err != nil {
			return err
		}
		content := bundle.Certificate + "\n" + strings.Join(bundle.Chain, "\n") + "\n" + pair.PrivateKey
		path := s.bundlePath(hostname)
		existing, err := os.ReadFile(path)
		if err == nil && string(existing) == content {
			continue
		}
		if err := s.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("writing certificate bundle for %s: %w", hostname, err)
		}
		if s.OnBundleWrite != nil {
			s.OnBundleWrite(hostname)
		}
		s.Logger.Info("installed certificate bundle", "hostname", hostname)
	}
	return nil
}

// CertificateExpiring regenerates a CSR from the hostname's existing key
// and replaces the expiring certificate's request with it, asking the CA
// for a renewal. An unknown certificate is ignored.
func (s *Store) CertificateExpiring(certificate string) error {
	rel := s.relation()
	if rel == nil {
		return fmt.Errorf("%w: certificates relation not established", state.ErrTLSNotReady)
	}
	cert, err := s.findProviderCertificate(certificate)
	if err != nil {
		return err
	}
	if cert == nil {
		s.Logger.Warn("expiring certificate does not match any issued certificate")
		return nil
	}
	pair, err := s.EnsureKeyPair(cert.Hostname)
	if err != nil {
		return err
	}
	renewalCSR, err := generateCSR(cert.Hostname, pair.PrivateKey)
	if err != nil {
		return err
	}

	requests, err := s.certificateRequests(rel)
	if err != nil {
		return err
	}
	for i, request := range requests {
		if request.CSR == cert.CSR {
			requests[i] = certificateRequest{CSR: renewalCSR, RequestID: uuid.NewString()}
		}
	}
	if err := s.saveRequests(rel, requests); err != nil {
		return err
	}
	s.Logger.Info("requested certificate renewal", "hostname", cert.Hostname)
	return nil
}

// CertificateInvalidated removes the certificate's on-disk bundle, purges
// its private-key secret and withdraws the matching request. An unknown
// certificate is ignored.
func (s *Store) CertificateInvalidated(certificate string) error {
	cert, err := s.findProviderCertificate(certificate)
	if err != nil {
		return err
	}
	if cert == nil {
		s.Logger.Warn("invalidated certificate does not match any issued certificate")
		return nil
	}
	return s.invalidate(cert)
}

// AllCertificatesInvalidated invalidates every currently-issued certificate,
// for example when the CA relation is departing.
func (s *Store) AllCertificatesInvalidated() error {
	provided, err := s.providerCertificates()
	if err != nil {
		return err
	}
	for i := range provided {
		if err := s.invalidate(&provided[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetProviderCertWithHostname returns the first issued certificate whose
// common name matches hostname, or nil when none has been issued yet.
func (s *Store) GetProviderCertWithHostname(hostname string) (*ProviderCertificate, error) {
	provided, err := s.providerCertificates()
	if err != nil {
		return nil, err
	}
	for i := range provided {
		if provided[i].Hostname == hostname {
			return &provided[i], nil
		}
	}
	return nil, nil
}

func (s *Store) invalidate(cert *ProviderCertificate) error {
	path := s.bundlePath(cert.Hostname)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing certificate bundle: %w", err)
	}
	err := s.Secrets.Delete(secretLabel(cert.Hostname))
	if errors.Is(err, ErrSecretNotFound) {
		s.Logger.Warn("private key secret already gone", "hostname", cert.Hostname)
	} else if err != nil {
		return err
	}

	rel := s.relation()
	if rel == nil {
		return nil
	}
	requests, err := s.certificateRequests(rel)
	if err != nil {
		return err
	}
	remaining := requests[:0]
	for _, request := range requests {
		if request.CSR != cert.CSR {
			remaining = append(remaining, request)
		}
	}
	return s.saveRequests(rel, remaining)
}

func (s *Store) bundlePath(hostname string) string {
	return filepath.Join(s.CertsDir, hostname+".pem")
}

func (s *Store) certificateRequests(rel *relation.Relation) ([]certificateRequest, error) {
	if !rel.LocalUnitData.Has(requestsKey) {
		return nil, nil
	}
	var requests []certificateRequest
	if err := rel.LocalUnitData.DecodeJSON(requestsKey, &requests); err != nil {
		return nil, fmt.Errorf("decoding certificate requests: %w", err)
	}
	return requests, nil
}

func (s *Store) saveRequests(rel *relation.Relation, requests []certificateRequest) error {
	if requests == nil {
		requests = []certificateRequest{}
	}
	return rel.LocalUnitData.EncodeJSON(requestsKey, requests)
}

// providerCertificates reads the issued certificates from the provider's
// application databag, keeping only those that answer one of our own
// outstanding requests.
func (s *Store) providerCertificates() ([]ProviderCertificate, error) {
	rel := s.relation()
	if rel == nil {
		return nil, nil
	}
	requests, err := s.certificateRequests(rel)
	if err != nil {
		return nil, err
	}
	outstanding := make(map[string]struct{}, len(requests))
	for _, request := range requests {
		outstanding[request.CSR] = struct{}{}
	}

	if !rel.AppData.Has(certificatesKey) {
		return nil, nil
	}
	var provided []ProviderCertificate
	if err := rel.AppData.DecodeJSON(certificatesKey, &provided); err != nil {
		return nil, fmt.Errorf("decoding issued certificates: %w", err)
	}
	matched := provided[:0]
	for _, cert := range provided {
		if _, ok := outstanding[cert.CSR]; !ok {
			continue
		}
		hostname, err := certificateCommonName(cert.Certificate)
		if err != nil {
			return nil, err
		}
		cert.Hostname = hostname
		matched = append(matched, cert)
	}
	return matched, nil
}

func (s *Store) findProviderCertificate(certificate string) (*ProviderCertificate, error) {
	provided, err := s.providerCertificates()
	if err != nil {
		return nil, err
	}
	for i := range provided {
		if strings.TrimSpace(provided[i].Certificate) == strings.TrimSpace(certificate) {
			return &provided[i], nil
		}
	}
	return nil, nil
}

func generateCSR(hostname, privateKeyPEM string) (string, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return "", fmt.Errorf("%w: private key is not pem encoded", ErrMissingPrivateKey)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: hostname},
		DNSNames: []string{hostname},
	}, key)
	if err != nil {
		return "", fmt.Errorf("creating certificate request: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})), nil
}

func csrCommonName(csrPEM string) (string, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		return "", fmt.Errorf("%w: request is not pem encoded", ErrInvalidCertificate)
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return csr.Subject.CommonName, nil
}

func certificateCommonName(certPEM string) (string, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return "", fmt.Errorf("%w: certificate is not pem encoded", ErrInvalidCertificate)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return cert.Subject.CommonName, nil
}
