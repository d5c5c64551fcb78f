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

package legacy

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

// InvalidPortError reports every out-of-range port found across the
// requirer data. All violations are collected before failing so the status
// message names them all at once.
type InvalidPortError struct {
	Ports []string
}

func (e *InvalidPortError) Error() string {
	return "invalid port(s) in reverseproxy relation data: " + strings.Join(e.Ports, ",")
}

// ServicesFromRelations aggregates the service definitions from every unit
// on the reverseproxy relations.
//
// Units that publish a "services" YAML blob define services wholesale; the
// apache2 charm's "all_services" variant is honored too, with its
// second-hop servers rewritten to the unit's private-address. Remaining
// units contribute single server entries via bare key-value pairs, matched
// to a service by explicit service_name, by sitenames, by their own
// application name, or falling back to the first-registered service.
//
// Returns the services sorted by name. A non-nil *InvalidPortError is
// returned alongside the valid services when any port is out of range.
func ServicesFromRelations(relations []*relation.Relation, isProxy func(string) bool, logger *slog.Logger) ([]*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	type unitData struct {
		unit string
		data relation.Databag
	}
	var units []unitData
	for _, rel := range relations {
		for _, name := range rel.UnitNames() {
			units = append(units, unitData{unit: name, data: rel.Units[name]})
		}
	}

	set := newServiceSet()

	anyServicesKey := false
	for _, u := range units {
		if u.data.Has("services") {
			anyServicesKey = true
			break
		}
	}
	if !anyServicesKey {
		if err := set.parseServicesYAML(DefaultServiceDefinition, isProxy); err != nil {
			return nil, err
		}
	}

	for _, u := range units {
		if u.data.Has("services") {
			if err := set.parseServicesYAML(u.data.String("services"), isProxy); err != nil {
				return nil, err
			}
			continue
		}
		if u.data.Has("all_services") {
			if err := set.parseServicesYAML(u.data.String("all_services"), isProxy); err != nil {
				return nil, err
			}
			rewriteSecondHopServers(set, u.data.String("private-address"))
		}
	}

	if len(set.byName) == 0 {
		logger.Info("no services configured")
		return nil, nil
	}

	for _, u := range units {
		if u.data.Has("services") {
			logger.Info("unit overrides 'services', skipping further processing", "unit", u.unit)
			continue
		}
		addUnitServer(set, u.unit, u.data, logger)
	}

	hasServers := false
	for _, service := range set.byName {
		if len(service.Servers) > 0 {
			hasServers = true
			break
		}
	}
	if !hasServers {
		logger.Info("no backend servers configured")
		return nil, nil
	}

	services := ensureServiceHostPort(set.sorted())
	return services, validatePorts(services)
}

// rewriteSecondHopServers replaces each server's address with the
// publishing unit's private-address and its port with the service port.
// The apache2 charm publishes servers that sit two hops away and cannot be
// reached directly.
func rewriteSecondHopServers(set *serviceSet, privateAddress string) {
	for name, service := range set.byName {
		if name == "service" || len(service.Servers) == 0 {
			continue
		}
		port := ""
		if service.Port != nil {
			port = strconv.Itoa(*service.Port)
		}
		for i := range service.Servers {
			service.Servers[i].Address = privateAddress
			service.Servers[i].Port = port
		}
	}
}

// addUnitServer appends one server entry derived from a unit's bare
// key-value data to every service the unit belongs to.
func addUnitServer(set *serviceSet, unit string, data relation.Databag, logger *slog.Logger) {
	for _, required := range []string{"port", "private-address"} {
		if !data.Has(required) {
			logger.Info("missing required key in relation data, skipping unit",
				"key", required, "unit", unit)
			return
		}
	}

	host := data.String("private-address")
	port := strings.Trim(data.Get("port"), `"`)
	appName, _, _ := strings.Cut(unit, "/")
	serverName := fmt.Sprintf("%s-%s", strings.ReplaceAll(unit, "/", "-"), port)

	serviceNames := map[string]bool{}
	if data.Has("service_name") {
		name := data.String("service_name")
		if _, ok := set.byName[name]; !ok {
			logger.Info("requested service does not exist, skipping unit",
				"service", name, "unit", unit)
			return
		}
		serviceNames[name] = true
	}
	if data.Has("sitenames") {
		for _, sitename := range strings.Fields(data.String("sitenames")) {
			if _, ok := set.byName[sitename]; ok {
				serviceNames[sitename] = true
			}
		}
	}
	if _, ok := set.byName[appName+"_service"]; ok {
		serviceNames[appName+"_service"] = true
	}
	if _, ok := set.byName[appName]; ok {
		serviceNames[appName] = true
	}
	if len(serviceNames) == 0 && set.hasDefault {
		serviceNames[set.defaultName] = true
	}

	for name := range serviceNames {
		service := set.byName[name]
		service.Servers = append(service.Servers, ServerEntry{
			Name:    serverName,
			Address: host,
			Port:    port,
			Options: service.ServerOptions,
		})
	}
}

// sorted returns the accumulated services in ascending name order.
func (set *serviceSet) sorted() []*Service {
	names := make([]string, 0, len(set.byName))
	for name := range set.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	services := make([]*Service, 0, len(names))
	for _, name := range names {
		services = append(services, set.byName[name])
	}
	return services
}

// ensureServiceHostPort assigns a listen address to every service that did
// not specify one: host 0.0.0.0 and a port counter advancing by 2 from the
// highest port already seen, in ascending service-name order.
func ensureServiceHostPort(services []*Service) []*Service {
	type hostPort struct {
		host string
		port int
	}
	var seen []hostPort
	var missing []*Service
	for _, service := range services {
		if service.Host == "" || service.Port == nil {
			missing = append(missing, service)
			continue
		}
		seen = append(seen, hostPort{host: service.Host, port: *service.Port})
	}

	sort.Slice(seen, func(i, j int) bool {
		if seen[i].host != seen[j].host {
			return seen[i].host < seen[j].host
		}
		return seen[i].port < seen[j].port
	})
	lastPort := 0
	if len(seen) > 0 {
		lastPort = seen[len(seen)-1].port
	}
	for _, service := range missing {
		lastPort += 2
		port := lastPort
		service.Host = "0.0.0.0"
		service.Port = &port
	}
	return services
}

// validatePorts checks every listen and server port against [0, 65535],
// collecting all violations instead of stopping at the first.
func validatePorts(services []*Service) error {
	var invalid []string
	check := func(raw string) {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 0 || port > 65535 {
			invalid = append(invalid, raw)
		}
	}
	for _, service := range services {
		if service.Port != nil && (*service.Port < 0 || *service.Port > 65535) {
			invalid = append(invalid, strconv.Itoa(*service.Port))
		}
		for _, server := range service.Servers {
			check(server.Port)
		}
		for _, backend := range service.Backends {
			for _, server := range backend.Servers {
				check(server.Port)
			}
		}
	}
	if len(invalid) > 0 {
		return &InvalidPortError{Ports: invalid}
	}
	return nil
}
