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

func TestNewIngressRequirersInformation(t *testing.T) {
	rel := &relation.Relation{
		ID:       1,
		Endpoint: IngressRelation,
		AppData: relation.Databag{
			"model": `"prod"`,
			"name":  `"web"`,
			"port":  `8080`,
		},
		Units: map[string]relation.Databag{
			"web/1": {"host": `"unit1.internal"`, "ip": `"10.0.0.11"`},
			"web/0": {"host": `"unit0.internal"`},
		},
	}

	info, err := NewIngressRequirersInformation([]*relation.Relation{rel})
	require.NoError(t, err)
	require.Len(t, info.Backends, 1)

	backend := info.Backends[0]
	assert.Equal(t, "prod-web", backend.BackendName)
	require.Len(t, backend.Servers, 2)
	// Units iterate in sorted order; ip wins over host when both present.
	assert.Equal(t, HAProxyServer{ServerName: "prod-web-0", HostnameOrIP: "unit0.internal", Port: 8080}, backend.Servers[0])
	assert.Equal(t, HAProxyServer{ServerName: "prod-web-1", HostnameOrIP: "10.0.0.11", Port: 8080}, backend.Servers[1])
}

func TestNewIngressRequirersInformationInvalidData(t *testing.T) {
	tests := []struct {
		name    string
		appData relation.Databag
		units   map[string]relation.Databag
	}{
		{
			name:    "missing identity",
			appData: relation.Databag{"port": `8080`},
			units:   map[string]relation.Databag{"web/0": {"host": `"h"`}},
		},
		{
			name:    "missing port",
			appData: relation.Databag{"model": `"prod"`, "name": `"web"`},
			units:   map[string]relation.Databag{"web/0": {"host": `"h"`}},
		},
		{
			name:    "port out of range",
			appData: relation.Databag{"model": `"prod"`, "name": `"web"`, "port": `70000`},
			units:   map[string]relation.Databag{"web/0": {"host": `"h"`}},
		},
		{
			name:    "unit without address",
			appData: relation.Databag{"model": `"prod"`, "name": `"web"`, "port": `8080`},
			units:   map[string]relation.Databag{"web/0": {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := &relation.Relation{ID: 1, Endpoint: IngressRelation, AppData: tt.appData, Units: tt.units}

			_, err := NewIngressRequirersInformation([]*relation.Relation{rel})
			var invalid *InvalidDataError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, IngressRelation, invalid.Endpoint)
		})
	}
}

func TestNewIngressPerUnitRequirersInformation(t *testing.T) {
	rel := &relation.Relation{
		ID:       1,
		Endpoint: IngressPerUnitRelation,
		Units: map[string]relation.Databag{
			"worker/0": {
				"model": `"prod"`,
				"name":  `"worker/0"`,
				"host":  `"10.0.0.20"`,
				"port":  `9000`,
			},
		},
	}

	info, err := NewIngressPerUnitRequirersInformation([]*relation.Relation{rel})
	require.NoError(t, err)
	require.Len(t, info.Backends, 1)

	backend := info.Backends[0]
	assert.Equal(t, "prod_worker_0", backend.BackendName)
	assert.Equal(t, "prod-worker/0", backend.BackendPath)
	assert.Equal(t, "10.0.0.20", backend.HostnameOrIP)
	assert.Equal(t, 9000, backend.Port)
}

func TestNewIngressPerUnitRequirersInformationInvalidData(t *testing.T) {
	rel := &relation.Relation{
		ID:       1,
		Endpoint: IngressPerUnitRelation,
		Units: map[string]relation.Databag{
			"worker/0": {"model": `"prod"`, "name": `"worker/0"`, "port": `9000`},
		},
	}

	_, err := NewIngressPerUnitRequirersInformation([]*relation.Relation{rel})
	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, IngressPerUnitRelation, invalid.Endpoint)
}
