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

package events

import "time"

// baseEvent provides the Kind/Timestamp plumbing shared by all event types.
type baseEvent struct {
	kind string
	ts   time.Time
}

func (e baseEvent) Kind() string         { return e.kind }
func (e baseEvent) Timestamp() time.Time { return e.ts }

func newBase(kind string) baseEvent {
	return baseEvent{kind: kind, ts: time.Now()}
}

// InstallEvent is delivered once when the unit is first set up.
type InstallEvent struct {
	baseEvent
}

// NewInstallEvent creates an InstallEvent.
func NewInstallEvent() *InstallEvent {
	return &InstallEvent{newBase("install")}
}

// ConfigChangedEvent is delivered when the operator's configuration changes.
type ConfigChangedEvent struct {
	baseEvent
}

// NewConfigChangedEvent creates a ConfigChangedEvent.
func NewConfigChangedEvent() *ConfigChangedEvent {
	return &ConfigChangedEvent{newBase("config.changed")}
}

// RelationChangedEvent is delivered when a remote unit or application updates
// its databag on the named integration endpoint.
type RelationChangedEvent struct {
	baseEvent

	// Endpoint is the local integration endpoint name, e.g. "ingress".
	Endpoint string

	// RelationID identifies the specific relation instance.
	RelationID int
}

// NewRelationChangedEvent creates a RelationChangedEvent for an endpoint.
func NewRelationChangedEvent(endpoint string, relationID int) *RelationChangedEvent {
	return &RelationChangedEvent{
		baseEvent:  newBase("relation.changed." + endpoint),
		Endpoint:   endpoint,
		RelationID: relationID,
	}
}

// RelationBrokenEvent is delivered when an integration is removed.
type RelationBrokenEvent struct {
	baseEvent

	Endpoint   string
	RelationID int
}

// NewRelationBrokenEvent creates a RelationBrokenEvent for an endpoint.
func NewRelationBrokenEvent(endpoint string, relationID int) *RelationBrokenEvent {
	return &RelationBrokenEvent{
		baseEvent:  newBase("relation.broken." + endpoint),
		Endpoint:   endpoint,
		RelationID: relationID,
	}
}

// CertificateAvailableEvent is delivered when the certificate authority has
// issued (or re-issued) a certificate for one of our signing requests.
type CertificateAvailableEvent struct {
	baseEvent
}

// NewCertificateAvailableEvent creates a CertificateAvailableEvent.
func NewCertificateAvailableEvent() *CertificateAvailableEvent {
	return &CertificateAvailableEvent{newBase("certificates.available")}
}

// CertificateExpiringEvent is delivered when an issued certificate approaches
// its expiry and should be renewed.
type CertificateExpiringEvent struct {
	baseEvent

	// Certificate is the PEM text of the expiring certificate.
	Certificate string
}

// NewCertificateExpiringEvent creates a CertificateExpiringEvent.
func NewCertificateExpiringEvent(certificate string) *CertificateExpiringEvent {
	return &CertificateExpiringEvent{
		baseEvent:   newBase("certificates.expiring"),
		Certificate: certificate,
	}
}

// CertificateInvalidatedEvent is delivered when the certificate authority
// revokes an issued certificate.
type CertificateInvalidatedEvent struct {
	baseEvent

	// Certificate is the PEM text of the invalidated certificate.
	Certificate string
}

// NewCertificateInvalidatedEvent creates a CertificateInvalidatedEvent.
func NewCertificateInvalidatedEvent(certificate string) *CertificateInvalidatedEvent {
	return &CertificateInvalidatedEvent{
		baseEvent:   newBase("certificates.invalidated"),
		Certificate: certificate,
	}
}

// AllCertificatesInvalidatedEvent is delivered when the certificates
// integration goes away entirely and every issued certificate must be
// treated as revoked.
type AllCertificatesInvalidatedEvent struct {
	baseEvent
}

// NewAllCertificatesInvalidatedEvent creates an AllCertificatesInvalidatedEvent.
func NewAllCertificatesInvalidatedEvent() *AllCertificatesInvalidatedEvent {
	return &AllCertificatesInvalidatedEvent{newBase("certificates.all-invalidated")}
}
