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

package relation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoBindAddress is returned when the unit's network address is not known.
// The reconciler surfaces this instead of defaulting to a bogus address.
var ErrNoBindAddress = errors.New("unit bind address unavailable")

// Snapshot is an in-memory Model implementation.
//
// It backs both tests and the CLI, which loads the platform-exported state
// from a JSON file before each run.
type Snapshot struct {
	Unit          string                 `json:"unit"`
	App           string                 `json:"app"`
	Address       string                 `json:"address"`
	ConfigValues  map[string]string      `json:"config"`
	RelationsData map[string][]*Relation `json:"relations"`
}

// NewSnapshot creates an empty snapshot for the given unit name.
// The application name is derived from the unit name.
func NewSnapshot(unit, address string) *Snapshot {
	app := unit
	for i := 0; i < len(unit); i++ {
		if unit[i] == '/' {
			app = unit[:i]
			break
		}
	}
	return &Snapshot{
		Unit:          unit,
		App:           app,
		Address:       address,
		ConfigValues:  map[string]string{},
		RelationsData: map[string][]*Relation{},
	}
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if s.ConfigValues == nil {
		s.ConfigValues = map[string]string{}
	}
	for _, relations := range s.RelationsData {
		for _, r := range relations {
			initDatabags(r)
		}
	}
	return &s, nil
}

// Relations implements Model.
func (s *Snapshot) Relations(endpoint string) []*Relation {
	return s.RelationsData[endpoint]
}

// Config implements Model.
func (s *Snapshot) Config() map[string]string {
	return s.ConfigValues
}

// UnitName implements Model.
func (s *Snapshot) UnitName() string {
	return s.Unit
}

// AppName implements Model.
func (s *Snapshot) AppName() string {
	return s.App
}

// BindAddress implements Model.
func (s *Snapshot) BindAddress() (string, error) {
	if s.Address == "" {
		return "", ErrNoBindAddress
	}
	return s.Address, nil
}

// AddRelation appends a relation snapshot under its endpoint.
// Nil databags are initialized so callers can write into them immediately.
func (s *Snapshot) AddRelation(r *Relation) *Relation {
	initDatabags(r)
	s.RelationsData[r.Endpoint] = append(s.RelationsData[r.Endpoint], r)
	return r
}

func initDatabags(r *Relation) {
	if r.AppData == nil {
		r.AppData = Databag{}
	}
	if r.Units == nil {
		r.Units = map[string]Databag{}
	}
	if r.LocalAppData == nil {
		r.LocalAppData = Databag{}
	}
	if r.LocalUnitData == nil {
		r.LocalUnitData = Databag{}
	}
}

// RemoveRelation removes the relation with the given endpoint and ID.
func (s *Snapshot) RemoveRelation(endpoint string, id int) {
	kept := s.RelationsData[endpoint][:0]
	for _, r := range s.RelationsData[endpoint] {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.RelationsData, endpoint)
		return
	}
	s.RelationsData[endpoint] = kept
}
