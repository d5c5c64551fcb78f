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

// Package state builds the operator's desired-state model from the current
// integration membership and configuration.
//
// Every type here is reconstructed from scratch on each reconciliation pass;
// nothing is carried over between events. Constructors validate their inputs
// and return typed errors which the dispatch layer translates into unit
// status.
package state

import (
	"context"
	"log/slog"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

// Integration endpoint names.
const (
	IngressRelation        = "ingress"
	IngressPerUnitRelation = "ingress-per-unit"
	ReverseProxyRelation   = "reverseproxy"
	HaproxyRouteRelation   = "haproxy-route"
	HaproxyPeerRelation    = "haproxy-peers"
	HAClusterRelation      = "ha"
	CertificatesRelation   = "certificates"
	WebsiteRelation        = "website"
)

// ProxyMode is the single active routing strategy, selected from the
// mutually exclusive integration types.
type ProxyMode string

const (
	// ModeHaproxyRoute is active when haproxy-route is related.
	ModeHaproxyRoute ProxyMode = "haproxy-route"
	// ModeIngress is active when ingress is related.
	ModeIngress ProxyMode = "ingress"
	// ModeIngressPerUnit is active when ingress-per-unit is related.
	ModeIngressPerUnit ProxyMode = "ingress-per-unit"
	// ModeLegacy is active when the legacy reverseproxy relation is related.
	ModeLegacy ProxyMode = "legacy"
	// ModeNoProxy serves a default page when nothing is related.
	ModeNoProxy ProxyMode = "noproxy"
	// ModeInvalid marks a state where reconciliation must not proceed.
	ModeInvalid ProxyMode = "invalid"
)

// IntegrationMembership records which of the mutually exclusive proxying
// integrations are currently established.
type IntegrationMembership struct {
	Ingress        bool
	IngressPerUnit bool
	Legacy         bool
	HaproxyRoute   bool
}

// MembershipFromModel reads the current integration membership from the model.
func MembershipFromModel(model relation.Model) IntegrationMembership {
	return IntegrationMembership{
		Ingress:        len(model.Relations(IngressRelation)) > 0,
		IngressPerUnit: len(model.Relations(IngressPerUnitRelation)) > 0,
		Legacy:         len(model.Relations(ReverseProxyRelation)) > 0,
		HaproxyRoute:   len(model.Relations(HaproxyRouteRelation)) > 0,
	}
}

// ResolveMode validates that at most one proxying integration is established
// and returns the resulting mode.
//
// There is no priority ordering between the four active modes: they cannot
// coexist, so the check is a plain "more than one" guard. More than one
// returns ModeInvalid together with ErrTooManyIntegrations, and the caller
// must not proceed to render.
func ResolveMode(m IntegrationMembership) (ProxyMode, error) {
	related := 0
	for _, b := range []bool{m.Ingress, m.IngressPerUnit, m.Legacy, m.HaproxyRoute} {
		if b {
			related++
		}
	}
	if related > 1 {
		return ModeInvalid, ErrTooManyIntegrations
	}

	switch {
	case m.Ingress:
		return ModeIngress, nil
	case m.IngressPerUnit:
		return ModeIngressPerUnit, nil
	case m.Legacy:
		return ModeLegacy, nil
	case m.HaproxyRoute:
		return ModeHaproxyRoute, nil
	}
	return ModeNoProxy, nil
}

// CharmState is the consolidated desired-state model: the resolved proxy
// mode plus validated global settings. Immutable for the duration of one
// reconciliation pass.
type CharmState struct {
	Mode                ProxyMode
	GlobalMaxConnection int
}

// NewCharmState resolves the proxy mode and validates the operator's
// configuration in one step.
//
// Mode resolution runs first so that a too-many-integrations condition is
// reported even when the configuration is also invalid.
func NewCharmState(ctx context.Context, model relation.Model, fileMax FileMaxFunc, logger *slog.Logger) (CharmState, error) {
	mode, err := ResolveMode(MembershipFromModel(model))
	if err != nil {
		return CharmState{Mode: ModeInvalid}, err
	}

	config, err := NewCharmConfig(ctx, model.Config(), fileMax, logger)
	if err != nil {
		return CharmState{Mode: ModeInvalid}, err
	}

	return CharmState{
		Mode:                mode,
		GlobalMaxConnection: config.GlobalMaxConnection,
	}, nil
}
