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

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

// HAProxyServer represents one destination server inside a backend.
type HAProxyServer struct {
	// ServerName is derived and collision-free within its backend.
	ServerName string
	// HostnameOrIP is the address of the requirer unit.
	HostnameOrIP string
	// Port is the port the requirer application wishes to be exposed.
	Port int
}

// HAProxyBackend represents one ingress requirer application.
type HAProxyBackend struct {
	BackendName string
	Servers     []HAProxyServer
	// StripPrefix controls whether the path prefix is stripped before
	// forwarding to the backend.
	StripPrefix bool
}

// IngressRequirersInformation holds one backend per remote application on
// the ingress integration.
type IngressRequirersInformation struct {
	Backends []HAProxyBackend
}

// NewIngressRequirersInformation parses the ingress relations' databags.
//
// The remote application publishes its model, name, port and strip-prefix
// flag; each remote unit publishes its host and optionally a resolved ip,
// which is preferred. Missing or malformed fields produce an
// InvalidDataError for the whole endpoint.
func NewIngressRequirersInformation(relations []*relation.Relation) (IngressRequirersInformation, error) {
	backends := make([]HAProxyBackend, 0, len(relations))
	for _, rel := range relations {
		backend, err := parseIngressRelation(rel)
		if err != nil {
			return IngressRequirersInformation{}, &InvalidDataError{Endpoint: IngressRelation, Err: err}
		}
		backends = append(backends, backend)
	}
	return IngressRequirersInformation{Backends: backends}, nil
}

func parseIngressRelation(rel *relation.Relation) (HAProxyBackend, error) {
	model := rel.AppData.String("model")
	name := rel.AppData.String("name")
	if model == "" || name == "" {
		return HAProxyBackend{}, fmt.Errorf("relation %d: missing requirer application identity", rel.ID)
	}
	port, err := rel.AppData.Int("port")
	if err != nil {
		return HAProxyBackend{}, fmt.Errorf("relation %d: %w", rel.ID, err)
	}
	if port < 1 || port > 65535 {
		return HAProxyBackend{}, fmt.Errorf("relation %d: port %d out of range", rel.ID, port)
	}

	backendName := fmt.Sprintf("%s-%s", model, name)
	servers := make([]HAProxyServer, 0, len(rel.Units))
	for i, unitName := range rel.UnitNames() {
		unitData := rel.Units[unitName]
		address := unitData.String("ip")
		if address == "" {
			address = unitData.String("host")
		}
		if address == "" {
			return HAProxyBackend{}, fmt.Errorf("relation %d: unit %s has no host or ip", rel.ID, unitName)
		}
		servers = append(servers, HAProxyServer{
			ServerName:   fmt.Sprintf("%s-%d", backendName, i),
			HostnameOrIP: address,
			Port:         port,
		})
	}

	return HAProxyBackend{
		BackendName: backendName,
		Servers:     servers,
		StripPrefix: rel.AppData.Bool("strip-prefix"),
	}, nil
}
