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

func TestNewHAInformation(t *testing.T) {
	model := relation.NewSnapshot("haproxy/0", "10.0.0.1")
	model.ConfigValues[VIPOption] = "10.0.0.100"
	model.AddRelation(&relation.Relation{
		ID:       1,
		Endpoint: HAClusterRelation,
		Units:    map[string]relation.Databag{"hacluster/0": {}},
	})
	peer := model.AddRelation(&relation.Relation{ID: 2, Endpoint: HaproxyPeerRelation})
	peer.LocalUnitData.Set("vip", "10.0.0.99")

	info, err := NewHAInformation(model)
	require.NoError(t, err)
	assert.True(t, info.HAIntegrationReady)
	assert.True(t, info.PeerIntegrationReady)
	require.NotNil(t, info.VIP)
	assert.Equal(t, "10.0.0.100", info.VIP.String())
	require.NotNil(t, info.ConfiguredVIP)
	assert.Equal(t, "10.0.0.99", info.ConfiguredVIP.String())
}

func TestNewHAInformationRequiresVIPWhenHAReady(t *testing.T) {
	model := relation.NewSnapshot("haproxy/0", "10.0.0.1")
	model.AddRelation(&relation.Relation{
		ID:       1,
		Endpoint: HAClusterRelation,
		Units:    map[string]relation.Databag{"hacluster/0": {}},
	})

	_, err := NewHAInformation(model)
	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{VIPOption}, invalid.Fields)
}

func TestNewHAInformationRelationWithoutUnitsNotReady(t *testing.T) {
	model := relation.NewSnapshot("haproxy/0", "10.0.0.1")
	model.AddRelation(&relation.Relation{ID: 1, Endpoint: HAClusterRelation})

	info, err := NewHAInformation(model)
	require.NoError(t, err)
	assert.False(t, info.HAIntegrationReady)
}

func TestNewHAInformationRejectsMalformedVIP(t *testing.T) {
	model := relation.NewSnapshot("haproxy/0", "10.0.0.1")
	model.ConfigValues[VIPOption] = "not-an-address"

	_, err := NewHAInformation(model)
	var invalid *InvalidConfigError
	assert.ErrorAs(t, err, &invalid)
}
