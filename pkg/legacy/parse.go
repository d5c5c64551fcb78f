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

// Package legacy implements the reverseproxy integration's service model.
//
// The data contract predates structured integration schemas: requirer units
// publish either a YAML blob describing whole services or bare key-value
// pairs per unit. The aggregation, merging and rendering rules here exist
// for drop-in compatibility with requirers of the original http interface
// and must not be modernized.
package legacy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLibDir holds per-service errorfiles and certificates.
	DefaultLibDir = "/var/lib/haproxy"
	// DefaultServiceConfigDir holds the <service>.is.proxy marker files.
	DefaultServiceConfigDir = "/var/run/haproxy"
)

// DefaultServiceDefinition is registered when no requirer unit publishes a
// services YAML blob of its own.
const DefaultServiceDefinition = `
- service_name: haproxy_service
  service_host: "0.0.0.0"
  service_port: 80
  service_options: [balance leastconn, cookie SRVNAME insert]
  server_options: maxconn 100 cookie S{i} check
`

// ServerEntry is one proxied server: name, address, port and per-server
// options. The port stays a string end to end because requirers publish it
// in either form and it is only ever concatenated into the bind line.
type ServerEntry struct {
	Name    string
	Address string
	Port    string
	Options []string
}

// Equal reports exact tuple equality, the deduplication criterion when
// server lists from multiple units are unioned.
func (s ServerEntry) Equal(other ServerEntry) bool {
	if s.Name != other.Name || s.Address != other.Address || s.Port != other.Port {
		return false
	}
	if len(s.Options) != len(other.Options) {
		return false
	}
	for i := range s.Options {
		if s.Options[i] != other.Options[i] {
			return false
		}
	}
	return true
}

// UnmarshalYAML accepts the wire form: a sequence [name, address, port]
// with an optional fourth element holding options as a string or list.
func (s *ServerEntry) UnmarshalYAML(value *yaml.Node) error {
	var parts []yaml.Node
	if err := value.Decode(&parts); err != nil {
		return fmt.Errorf("server entry is not a sequence: %w", err)
	}
	if len(parts) < 3 {
		return fmt.Errorf("server entry needs name, address and port, got %d elements", len(parts))
	}
	if err := parts[0].Decode(&s.Name); err != nil {
		return err
	}
	if err := parts[1].Decode(&s.Address); err != nil {
		return err
	}
	var port any
	if err := parts[2].Decode(&port); err != nil {
		return err
	}
	s.Port = fmt.Sprint(port)
	if len(parts) > 3 {
		var options optionList
		if err := parts[3].Decode(&options); err != nil {
			return err
		}
		s.Options = options
	}
	return nil
}

// Backend is a named group of extra servers within a service.
type Backend struct {
	Name    string        `yaml:"backend_name"`
	Servers []ServerEntry `yaml:"servers"`
}

// Errorfile is a custom error page, published base64-encoded.
type Errorfile struct {
	HTTPStatus int    `yaml:"http_status"`
	Content    string `yaml:"content"`
}

// Service is one logical proxied service as aggregated from all requirer
// units. Host and Port stay unset until EnsureServiceHostPort assigns
// defaults.
type Service struct {
	Name           string        `yaml:"service_name"`
	Host           string        `yaml:"service_host"`
	Port           *int          `yaml:"service_port"`
	ServiceOptions optionList    `yaml:"service_options"`
	ServerOptions  optionList    `yaml:"server_options"`
	Servers        []ServerEntry `yaml:"servers"`
	Backends       []Backend     `yaml:"backends"`
	Errorfiles     []Errorfile   `yaml:"errorfiles"`
	Crts           []string      `yaml:"crts"`
}

// optionList accepts either a YAML list of options or a single
// comma-separated string.
type optionList []string

func (o *optionList) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		*o = commaSplit(single)
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*o = list
	return nil
}

func commaSplit(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// serviceSet accumulates services as they are parsed from requirer data.
// The first service ever registered becomes the default target for units
// that do not name a service explicitly.
type serviceSet struct {
	byName      map[string]*Service
	defaultName string
	hasDefault  bool
}

func newServiceSet() *serviceSet {
	return &serviceSet{byName: map[string]*Service{}}
}

// parseServicesYAML parses a services blob and merges it into the set.
// Repeated definitions of the same service union their server lists while
// earlier scalar values win.
func (set *serviceSet) parseServicesYAML(data string, isProxy func(string) bool) error {
	var parsed []*Service
	if err := yaml.Unmarshal([]byte(data), &parsed); err != nil {
		return fmt.Errorf("parsing services yaml: %w", err)
	}

	for _, service := range parsed {
		if !set.hasDefault {
			set.defaultName = service.Name
			set.hasDefault = true
		}

		if isProxy != nil && isProxy(service.Name) && !contains(service.ServiceOptions, "option forwardfor") {
			service.ServiceOptions = append(service.ServiceOptions, "option forwardfor")
		}

		merged, err := mergeService(set.byName[service.Name], service)
		if err != nil {
			return err
		}
		set.byName[service.Name] = merged
	}
	return nil
}

// mergeService merges a repeated definition of the same service. Scalar
// fields from the earlier definition win; server lists are unioned with
// exact duplicates stripped. Backends merge by name the same way.
func mergeService(old, new *Service) (*Service, error) {
	if old == nil {
		return new, nil
	}

	merged := *old
	if merged.Host == "" {
		merged.Host = new.Host
	}
	if merged.Port == nil {
		merged.Port = new.Port
	}
	if merged.ServiceOptions == nil {
		merged.ServiceOptions = new.ServiceOptions
	}
	if merged.ServerOptions == nil {
		merged.ServerOptions = new.ServerOptions
	}
	if merged.Errorfiles == nil {
		merged.Errorfiles = new.Errorfiles
	}
	if merged.Crts == nil {
		merged.Crts = new.Crts
	}

	switch {
	case old.Servers != nil && new.Servers != nil:
		merged.Servers = unionServers(old.Servers, new.Servers)
	case old.Servers == nil:
		merged.Servers = new.Servers
	}

	if old.Backends != nil && new.Backends != nil {
		byName := map[string]*Backend{}
		var names []string
		for _, backend := range append(append([]Backend{}, old.Backends...), new.Backends...) {
			if backend.Name == "" {
				return nil, fmt.Errorf("each backend must have backend_name")
			}
			if existing, ok := byName[backend.Name]; ok {
				existing.Servers = unionServers(existing.Servers, backend.Servers)
				continue
			}
			copied := backend
			byName[backend.Name] = &copied
			names = append(names, backend.Name)
		}
		sort.Strings(names)
		merged.Backends = make([]Backend, 0, len(names))
		for _, name := range names {
			merged.Backends = append(merged.Backends, *byName[name])
		}
	} else if old.Backends == nil {
		merged.Backends = new.Backends
	}

	return &merged, nil
}

func unionServers(target, additions []ServerEntry) []ServerEntry {
	result := append([]ServerEntry{}, target...)
	for _, addition := range additions {
		duplicate := false
		for _, existing := range result {
			if existing.Equal(addition) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			result = append(result, addition)
		}
	}
	return result
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// IsProxyMarker reports whether the service was flagged as a proxy via its
// marker file, which requires forwarded-for headers to be appended.
func IsProxyMarker(configDir string) func(string) bool {
	return func(serviceName string) bool {
		_, err := os.Stat(filepath.Join(configDir, serviceName+".is.proxy"))
		return err == nil
	}
}
