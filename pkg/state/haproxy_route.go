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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

// LoadBalancingAlgorithm selects how requests are spread over a backend's
// servers.
type LoadBalancingAlgorithm string

// Load balancing algorithms accepted from haproxy-route requirers.
const (
	AlgorithmLeastconn  LoadBalancingAlgorithm = "leastconn"
	AlgorithmRoundrobin LoadBalancingAlgorithm = "roundrobin"
	AlgorithmSource     LoadBalancingAlgorithm = "source"
	AlgorithmCookie     LoadBalancingAlgorithm = "cookie"
)

// LoadBalancingConfig is the requirer's requested balancing policy.
// The upstream data contract guarantees Cookie is set whenever the
// algorithm is cookie; it is not re-validated here.
type LoadBalancingConfig struct {
	Algorithm LoadBalancingAlgorithm `json:"algorithm"`
	Cookie    string                 `json:"cookie,omitempty"`
}

// ServerHealthCheck configures active health checking for a backend's
// servers.
type ServerHealthCheck struct {
	Interval int    `json:"interval,omitempty"`
	Rise     int    `json:"rise,omitempty"`
	Fall     int    `json:"fall,omitempty"`
	Path     string `json:"path,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// RateLimitPolicy requests per-client connection rate limiting.
type RateLimitPolicy struct {
	ConnectionsPerMinute int `json:"connections_per_minute"`
}

// RewriteRule is one requested request-rewrite directive.
type RewriteRule struct {
	// Method is the haproxy http-request action, e.g. "set-path" or
	// "set-header".
	Method string `json:"method"`
	// Header is only meaningful for set-header rewrites.
	Header     string `json:"header,omitempty"`
	Expression string `json:"expression"`
}

// RouteRequirerData is the application databag published by a
// haproxy-route requirer.
type RouteRequirerData struct {
	Service             string              `json:"service"`
	Ports               []int               `json:"ports"`
	Protocol            string              `json:"protocol,omitempty"`
	Hosts               []string            `json:"hosts,omitempty"`
	Paths               []string            `json:"paths,omitempty"`
	Hostname            string              `json:"hostname,omitempty"`
	AdditionalHostnames []string            `json:"additional_hostnames,omitempty"`
	LoadBalancing       LoadBalancingConfig `json:"load_balancing,omitempty"`
	Check               ServerHealthCheck   `json:"check,omitempty"`
	RateLimit           *RateLimitPolicy    `json:"rate_limit,omitempty"`
	Rewrites            []RewriteRule       `json:"rewrites,omitempty"`
	DenyPaths           []string            `json:"deny_paths,omitempty"`
	ServerMaxconn       int                 `json:"server_maxconn,omitempty"`
}

// RouteServer is one destination server in a haproxy-route backend.
type RouteServer struct {
	ServerName string
	Address    string
	Port       int
	Protocol   string
	Check      ServerHealthCheck
	Maxconn    int
}

// RouteBackend represents one haproxy-route requirer application together
// with the routing attributes derived from its request.
type RouteBackend struct {
	// RelationID is kept so results can be published back to the right
	// requirer.
	RelationID       int
	ApplicationData  RouteRequirerData
	Servers          []RouteServer
	ExternalHostname string
}

// BackendName returns the backend's name in the rendered configuration.
func (b *RouteBackend) BackendName() string {
	return b.ApplicationData.Service
}

// PathACLRequired reports whether the backend requested path routing.
func (b *RouteBackend) PathACLRequired() bool {
	return len(b.ApplicationData.Paths) > 0
}

// DenyPathACLRequired reports whether the backend requested denied paths.
func (b *RouteBackend) DenyPathACLRequired() bool {
	return len(b.ApplicationData.DenyPaths) > 0
}

// HostnameACLs builds the list of hostnames this backend matches on.
//
// The requirer's hostname plus additional hostnames win; otherwise the
// configured external-hostname is used. An empty result means there is no
// way to build a hostname ACL and the backend must be quarantined.
func (b *RouteBackend) HostnameACLs() []string {
	if b.ApplicationData.Hostname == "" {
		if b.ExternalHostname == "" {
			return nil
		}
		return []string{b.ExternalHostname}
	}
	return append([]string{b.ApplicationData.Hostname}, b.ApplicationData.AdditionalHostnames...)
}

// LoadBalancingConfiguration returns the backend's balance directive value.
func (b *RouteBackend) LoadBalancingConfiguration() string {
	lb := b.ApplicationData.LoadBalancing
	if lb.Algorithm == AlgorithmCookie {
		return fmt.Sprintf("hash req.cookie(%s)", lb.Cookie)
	}
	if lb.Algorithm == "" {
		return string(AlgorithmLeastconn)
	}
	return string(lb.Algorithm)
}

// RewriteConfigurations stringifies the requested rewrite rules into
// http-request directive arguments, e.g. "set-header COOKIE testing".
func (b *RouteBackend) RewriteConfigurations() []string {
	var configs []string
	for _, rewrite := range b.ApplicationData.Rewrites {
		if rewrite.Method == "set-header" {
			configs = append(configs, fmt.Sprintf("%s %s %s", rewrite.Method, rewrite.Header, rewrite.Expression))
			continue
		}
		configs = append(configs, fmt.Sprintf("%s %s", rewrite.Method, rewrite.Expression))
	}
	return configs
}

// MaxPathDepth returns the maximum segment depth of the backend's requested
// paths, or 1 when no custom path is requested. Deeper backends must be
// matched first by the rendered ACL ordering.
func (b *RouteBackend) MaxPathDepth() int {
	paths := b.ApplicationData.Paths
	if len(paths) == 0 {
		return 1
	}
	max := 0
	for _, path := range paths {
		depth := len(strings.Split(strings.TrimRight(path, "/"), "/"))
		if depth > max {
			max = depth
		}
	}
	return max
}

// HaproxyRouteRequirersInformation is the consolidated haproxy-route state.
type HaproxyRouteRequirersInformation struct {
	// Backends is ordered by descending maximum path depth; ties keep
	// their insertion order.
	Backends []*RouteBackend
	// StickTableEntries declares the shared stick tables required by
	// rate-limited backends, visible to all peer proxy instances.
	StickTableEntries []string
	// Peers holds the addresses of the haproxy peer units.
	Peers []string
	// RelationIDsWithInvalidData lists the requirers whose data could not
	// be used. Their published results are explicitly cleared rather than
	// silently dropped.
	RelationIDsWithInvalidData []int
}

// NewHaproxyRouteRequirersInformation parses every haproxy-route relation.
//
// Each remote side is quarantined independently: a requirer that supplies
// invalid data, a duplicate service name, or no way to construct a hostname
// ACL lands in RelationIDsWithInvalidData while the remaining requirers
// keep functioning.
func NewHaproxyRouteRequirersInformation(
	relations []*relation.Relation,
	externalHostname string,
	peers []string,
	logger *slog.Logger,
) (HaproxyRouteRequirersInformation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seenServices := map[string]bool{}
	var backends []*RouteBackend
	var stickTableEntries []string
	var invalidIDs []int

	for _, rel := range relations {
		data, err := parseRouteRequirerData(rel)
		if err != nil {
			logger.Warn("haproxy-route requirer supplied invalid data",
				"relation_id", rel.ID, "error", err)
			invalidIDs = append(invalidIDs, rel.ID)
			continue
		}
		if seenServices[data.Service] {
			logger.Warn("haproxy-route requirer reuses an already requested service name",
				"relation_id", rel.ID, "service", data.Service)
			invalidIDs = append(invalidIDs, rel.ID)
			continue
		}
		seenServices[data.Service] = true

		backend := &RouteBackend{
			RelationID:       rel.ID,
			ApplicationData:  data,
			Servers:          routeServers(rel, data),
			ExternalHostname: externalHostname,
		}
		if len(backend.HostnameACLs()) == 0 {
			invalidIDs = append(invalidIDs, rel.ID)
			continue
		}

		if data.RateLimit != nil {
			stickTableEntries = append(stickTableEntries, data.Service+"_rate_limit")
		}
		backends = append(backends, backend)
	}

	// Deeper path ACLs must be emitted before shallower ones so the most
	// specific backend wins.
	sort.SliceStable(backends, func(i, j int) bool {
		return backends[i].MaxPathDepth() > backends[j].MaxPathDepth()
	})

	info := HaproxyRouteRequirersInformation{
		Backends:                   backends,
		StickTableEntries:          stickTableEntries,
		Peers:                      peers,
		RelationIDsWithInvalidData: invalidIDs,
	}
	info.warnOnConflicts(logger)
	return info, nil
}

// warnOnConflicts logs when requirers declared paths or hostnames that map
// to multiple backends, which can cause unintended routing.
func (info *HaproxyRouteRequirersInformation) warnOnConflicts(logger *slog.Logger) {
	var paths, hostnames []string
	for _, backend := range info.Backends {
		paths = append(paths, backend.ApplicationData.Paths...)
		hostnames = append(hostnames, backend.HostnameACLs()...)
	}
	if hasDuplicates(paths) {
		logger.Warn("requirers defined path(s) that map to multiple backends, " +
			"this can cause unintended behaviours")
	}
	if hasDuplicates(hostnames) {
		logger.Warn("requirers defined hostname(s) that map to multiple backends, " +
			"this can cause unintended behaviours")
	}
}

func hasDuplicates(values []string) bool {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

func parseRouteRequirerData(rel *relation.Relation) (RouteRequirerData, error) {
	var data RouteRequirerData
	if err := decodeDatabag(rel.AppData, &data); err != nil {
		return RouteRequirerData{}, err
	}
	if data.Service == "" {
		return RouteRequirerData{}, fmt.Errorf("relation %d: missing service name", rel.ID)
	}
	if len(data.Ports) == 0 {
		return RouteRequirerData{}, fmt.Errorf("relation %d: no ports requested", rel.ID)
	}
	for _, port := range data.Ports {
		if port < 1 || port > 65535 {
			return RouteRequirerData{}, fmt.Errorf("relation %d: port %d out of range", rel.ID, port)
		}
	}
	return data, nil
}

// routeServers expands the requested server list: one server per address and
// port combination. An explicit hosts override wins entirely over the
// per-unit addresses when present.
func routeServers(rel *relation.Relation, data RouteRequirerData) []RouteServer {
	addresses := data.Hosts
	if len(addresses) == 0 {
		for _, unitName := range rel.UnitNames() {
			if address := rel.Units[unitName].String("address"); address != "" {
				addresses = append(addresses, address)
			}
		}
	}

	var servers []RouteServer
	for i, address := range addresses {
		for _, port := range data.Ports {
			servers = append(servers, RouteServer{
				ServerName: fmt.Sprintf("%s_%d_%d", data.Service, port, i),
				Address:    address,
				Port:       port,
				Protocol:   data.Protocol,
				Check:      data.Check,
				Maxconn:    data.ServerMaxconn,
			})
		}
	}
	return servers
}

// decodeDatabag assembles the individually JSON-encoded databag values into
// one JSON object and unmarshals it into out.
func decodeDatabag(bag relation.Databag, out any) error {
	fields := make(map[string]json.RawMessage, len(bag))
	for key, raw := range bag {
		if !json.Valid([]byte(raw)) {
			// Tolerate plain string values written without encoding.
			encoded, err := json.Marshal(raw)
			if err != nil {
				return err
			}
			raw = string(encoded)
		}
		fields[key] = json.RawMessage(raw)
	}
	doc, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("decoding requirer databag: %w", err)
	}
	return nil
}
