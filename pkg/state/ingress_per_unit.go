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
	"strings"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

// PerUnitBackend represents one ingress-per-unit requirer unit.
//
// Backend names and paths are namespaced by the remote model and unit
// identity so that two units with the same name in different models never
// collide.
type PerUnitBackend struct {
	BackendName  string
	BackendPath  string
	HostnameOrIP string
	Port         int
	StripPrefix  bool
}

// IngressPerUnitRequirersInformation holds one backend per remote unit on
// the ingress-per-unit integration.
type IngressPerUnitRequirersInformation struct {
	Backends []PerUnitBackend
}

// NewIngressPerUnitRequirersInformation parses the ingress-per-unit
// relations' unit databags. Unlike plain ingress, every remote unit carries
// its own complete record: model, unit name, host and port.
func NewIngressPerUnitRequirersInformation(relations []*relation.Relation) (IngressPerUnitRequirersInformation, error) {
	var backends []PerUnitBackend
	for _, rel := range relations {
		for _, unitName := range rel.UnitNames() {
			backend, err := parseIngressPerUnitData(rel.ID, unitName, rel.Units[unitName])
			if err != nil {
				return IngressPerUnitRequirersInformation{}, &InvalidDataError{Endpoint: IngressPerUnitRelation, Err: err}
			}
			backends = append(backends, backend)
		}
	}
	return IngressPerUnitRequirersInformation{Backends: backends}, nil
}

func parseIngressPerUnitData(relationID int, unitName string, data relation.Databag) (PerUnitBackend, error) {
	model := data.String("model")
	name := data.String("name")
	host := data.String("host")
	if model == "" || name == "" || host == "" {
		return PerUnitBackend{}, fmt.Errorf("relation %d: unit %s missing model, name or host", relationID, unitName)
	}
	port, err := data.Int("port")
	if err != nil {
		return PerUnitBackend{}, fmt.Errorf("relation %d: unit %s: %w", relationID, unitName, err)
	}
	if port < 1 || port > 65535 {
		return PerUnitBackend{}, fmt.Errorf("relation %d: unit %s: port %d out of range", relationID, unitName, port)
	}

	return PerUnitBackend{
		BackendName:  fmt.Sprintf("%s_%s", model, strings.ReplaceAll(name, "/", "_")),
		BackendPath:  fmt.Sprintf("%s-%s", model, name),
		HostnameOrIP: host,
		Port:         port,
		StripPrefix:  data.Bool("strip-prefix"),
	}, nil
}
