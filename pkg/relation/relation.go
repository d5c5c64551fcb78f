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

// Package relation models the platform's integration data transport.
//
// An integration (relation) connects this unit to a remote application. Each
// side exchanges flat string-to-string databags: one per application and one
// per unit. The operator only ever sees a point-in-time snapshot of that
// data; it is re-read from scratch on every reconciliation pass.
package relation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Databag is a flat string-to-string key-value map, the platform's only
// data exchange primitive. Values are frequently JSON-encoded.
type Databag map[string]string

// Get returns the raw value for key, or "" if absent.
func (d Databag) Get(key string) string {
	return d[key]
}

// Has reports whether key is present.
func (d Databag) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Set stores a raw value.
func (d Databag) Set(key, value string) {
	d[key] = value
}

// DecodeJSON decodes the JSON-encoded value stored under key into out.
// A missing key is an error so callers can distinguish "absent" from
// "present but malformed".
func (d Databag) DecodeJSON(key string, out any) error {
	raw, ok := d[key]
	if !ok {
		return fmt.Errorf("key %q not present in databag", key)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decoding databag key %q: %w", key, err)
	}
	return nil
}

// EncodeJSON stores a JSON encoding of value under key.
func (d Databag) EncodeJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding databag key %q: %w", key, err)
	}
	d[key] = string(raw)
	return nil
}

// Relation is a snapshot of one integration instance: the remote side's
// application and unit databags plus this side's writable databags.
type Relation struct {
	// ID identifies the relation instance; it is stable for the lifetime
	// of the integration and is used to publish results back.
	ID int `json:"id"`

	// Endpoint is the local endpoint name, e.g. "ingress" or "reverseproxy".
	Endpoint string `json:"endpoint"`

	// RemoteApp is the remote application name.
	RemoteApp string `json:"remote_app"`

	// AppData is the remote application databag.
	AppData Databag `json:"app_data"`

	// Units holds the remote unit databags keyed by unit name ("app/0").
	Units map[string]Databag `json:"units"`

	// LocalAppData is this application's writable databag on the relation.
	LocalAppData Databag `json:"local_app_data"`

	// LocalUnitData is this unit's writable databag on the relation.
	LocalUnitData Databag `json:"local_unit_data"`
}

// UnitNames returns the remote unit names in a stable sorted order.
// Databag maps have no deterministic iteration order; every consumer that
// derives per-unit output (server names, ports) must iterate in this order.
func (r *Relation) UnitNames() []string {
	names := make([]string, 0, len(r.Units))
	for name := range r.Units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model is the read side of the platform boundary: current integration
// membership, operator configuration, and this unit's identity.
//
// Implementations must return consistent snapshots; the reconciler assumes
// nothing changes underneath it during a single pass.
type Model interface {
	// Relations returns all established relations on the endpoint.
	Relations(endpoint string) []*Relation

	// Config returns the operator's current configuration values.
	Config() map[string]string

	// UnitName returns this unit's name, e.g. "haproxy/0".
	UnitName() string

	// AppName returns this application's name, e.g. "haproxy".
	AppName() string

	// BindAddress returns this unit's network address, or an error if the
	// address cannot be determined. Callers must not substitute a default.
	BindAddress() (string, error)
}
