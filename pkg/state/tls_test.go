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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

type staticCertificateSource struct {
	certificates []AssignedCertificate
	err          error
}

func (s *staticCertificateSource) AssignedCertificates() ([]AssignedCertificate, error) {
	return s.certificates, s.err
}

func tlsModel(hostname string) *relation.Snapshot {
	model := relation.NewSnapshot("haproxy/0", "10.0.0.1")
	model.ConfigValues[ExternalHostnameOption] = hostname
	model.AddRelation(&relation.Relation{
		ID:       1,
		Endpoint: CertificatesRelation,
		AppData:  relation.Databag{"certificates": `[]`},
	})
	return model
}

func TestNewTLSInformation(t *testing.T) {
	source := &staticCertificateSource{certificates: []AssignedCertificate{
		{Hostname: "proxy.example.com", Certificate: "CERT", Chain: []string{"CA"}},
	}}

	info, err := NewTLSInformation(tlsModel("proxy.example.com"), source)
	require.NoError(t, err)
	assert.Equal(t, "proxy.example.com", info.ExternalHostname)
	require.Contains(t, info.Certificates, "proxy.example.com")
	assert.Equal(t, "CERT", info.Certificates["proxy.example.com"].Certificate)
}

func TestNewTLSInformationInvalidHostname(t *testing.T) {
	for _, hostname := range []string{"", "UPPER.example.com", "-bad.example.com", "bad-.example.com"} {
		t.Run("hostname "+hostname, func(t *testing.T) {
			_, err := NewTLSInformation(tlsModel(hostname), &staticCertificateSource{})
			assert.ErrorIs(t, err, ErrTLSNotReady)
		})
	}
}

func TestNewTLSInformationRelationNotReady(t *testing.T) {
	model := relation.NewSnapshot("haproxy/0", "10.0.0.1")
	model.ConfigValues[ExternalHostnameOption] = "proxy.example.com"

	_, err := NewTLSInformation(model, &staticCertificateSource{})
	assert.ErrorIs(t, err, ErrTLSNotReady)

	// Relation present but the provider published nothing yet.
	model.AddRelation(&relation.Relation{ID: 1, Endpoint: CertificatesRelation})
	_, err = NewTLSInformation(model, &staticCertificateSource{})
	assert.ErrorIs(t, err, ErrTLSNotReady)
}
