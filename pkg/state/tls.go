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

package state

import (
	"fmt"
	"regexp"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

var hostnameRegex = regexp.MustCompile(
	`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

// CertificateBundle is an issued leaf certificate with its CA chain,
// both in PEM form.
type CertificateBundle struct {
	Certificate string
	Chain       []string
}

// AssignedCertificate is one certificate issued by the CA for a hostname we
// requested. The tlsrelation package produces these from the certificates
// integration databag.
type AssignedCertificate struct {
	Hostname    string
	Certificate string
	Chain       []string
}

// CertificateSource lists the certificates the CA has issued for this unit's
// outstanding requests.
type CertificateSource interface {
	AssignedCertificates() ([]AssignedCertificate, error)
}

// TLSInformation is the TLS portion of the desired state: the configured
// external hostname plus every issued certificate keyed by hostname.
//
// It is rebuilt on each reconciliation pass that needs TLS.
type TLSInformation struct {
	ExternalHostname string
	Certificates     map[string]CertificateBundle
}

// NewTLSInformation validates TLS preconditions and collects the issued
// certificates.
//
// Preconditions: the certificates integration must be established with
// remote application data present, and the configured external-hostname
// must be valid hostname syntax. Either failing returns an error wrapping
// ErrTLSNotReady; this is a "not yet" condition, not a configuration error.
func NewTLSInformation(model relation.Model, source CertificateSource) (TLSInformation, error) {
	hostname := model.Config()[ExternalHostnameOption]
	if !hostnameRegex.MatchString(hostname) {
		return TLSInformation{}, fmt.Errorf("%w: invalid hostname configuration %q", ErrTLSNotReady, hostname)
	}

	relations := model.Relations(CertificatesRelation)
	if len(relations) == 0 || len(relations[0].AppData) == 0 {
		return TLSInformation{}, fmt.Errorf("%w: certificates relation or relation data not ready", ErrTLSNotReady)
	}

	assigned, err := source.AssignedCertificates()
	if err != nil {
		return TLSInformation{}, err
	}
	certs := make(map[string]CertificateBundle, len(assigned))
	for _, cert := range assigned {
		certs[cert.Hostname] = CertificateBundle{
			Certificate: cert.Certificate,
			Chain:       cert.Chain,
		}
	}

	return TLSInformation{
		ExternalHostname: hostname,
		Certificates:     certs,
	}, nil
}
