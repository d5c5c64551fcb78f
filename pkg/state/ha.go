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
	"net/netip"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

// HAInformation describes the high-availability portion of the desired
// state: whether the hacluster and peer integrations are usable, the
// desired virtual IP, and the VIP this unit previously registered.
type HAInformation struct {
	HAIntegrationReady bool
	// VIP is the desired virtual IP. Non-nil whenever HAIntegrationReady.
	VIP                  *netip.Addr
	PeerIntegrationReady bool
	// ConfiguredVIP is the VIP previously published to the peer databag,
	// nil if none was registered yet.
	ConfiguredVIP *netip.Addr
}

// NewHAInformation reads HA state from the model.
//
// Invariant: when the hacluster integration is established a vip must be
// configured; violating that returns an InvalidConfigError so the unit
// blocks until the operator supplies one.
func NewHAInformation(model relation.Model) (HAInformation, error) {
	haRelations := model.Relations(HAClusterRelation)
	haReady := false
	for _, rel := range haRelations {
		if len(rel.Units) > 0 {
			haReady = true
			break
		}
	}

	var vip *netip.Addr
	if raw := model.Config()[VIPOption]; raw != "" {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return HAInformation{}, &InvalidConfigError{Fields: []string{VIPOption}}
		}
		vip = &addr
	}
	if haReady && vip == nil {
		return HAInformation{}, &InvalidConfigError{Fields: []string{VIPOption}}
	}

	peerRelations := model.Relations(HaproxyPeerRelation)
	peerReady := len(peerRelations) > 0

	var configuredVIP *netip.Addr
	if peerReady {
		if raw := peerRelations[0].LocalUnitData.Get("vip"); raw != "" {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return HAInformation{}, fmt.Errorf("previously registered vip %q is not an address: %w", raw, err)
			}
			configuredVIP = &addr
		}
	}

	return HAInformation{
		HAIntegrationReady:   haReady,
		VIP:                  vip,
		PeerIntegrationReady: peerReady,
		ConfiguredVIP:        configuredVIP,
	}, nil
}
