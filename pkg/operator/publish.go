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

package operator

import (
	"fmt"
	"strings"

	"github.com/dimaqq/haproxy-operator/pkg/state"
)

// ingressDataKey is the key requirers read the published URL from.
const ingressDataKey = "ingress"

// publishIngressURLs writes the computed external URL back to each ingress
// requirer. Backends are built one per relation in relation order, so the
// two lists line up by index.
func (o *Operator) publishIngressURLs(info state.IngressRequirersInformation, hostname string) error {
	relations := o.Model.Relations(state.IngressRelation)
	for i, rel := range relations {
		if i >= len(info.Backends) {
			break
		}
		url := fmt.Sprintf("https://%s/%s/", hostname, info.Backends[i].BackendName)
		if err := rel.LocalAppData.EncodeJSON(ingressDataKey, map[string]string{"url": url}); err != nil {
			return err
		}
	}
	return nil
}

// publishIngressPerUnitURLs writes one URL per remote unit. Backends are
// flattened across relations in relation-then-unit order, matching the
// parse order.
func (o *Operator) publishIngressPerUnitURLs(info state.IngressPerUnitRequirersInformation, hostname string) error {
	index := 0
	for _, rel := range o.Model.Relations(state.IngressPerUnitRelation) {
		urls := map[string]map[string]string{}
		for _, unitName := range rel.UnitNames() {
			if index >= len(info.Backends) {
				break
			}
			urls[unitName] = map[string]string{
				"url": fmt.Sprintf("https://%s/%s/", hostname, info.Backends[index].BackendPath),
			}
			index++
		}
		if err := rel.LocalAppData.EncodeJSON(ingressDataKey, urls); err != nil {
			return err
		}
	}
	return nil
}

// publishWebsite advertises this unit's address on the legacy website
// endpoint so downstream proxies can chain to it.
func (o *Operator) publishWebsite() error {
	relations := o.Model.Relations(state.WebsiteRelation)
	if len(relations) == 0 {
		return nil
	}
	address, err := o.Model.BindAddress()
	if err != nil {
		return err
	}
	for _, rel := range relations {
		rel.LocalUnitData.Set("hostname", address)
		rel.LocalUnitData.Set("port", "80")
	}
	return nil
}

// clearWebsite withdraws the advertisement from a departing website
// relation so a downstream proxy does not keep routing here.
func (o *Operator) clearWebsite(relationID int) {
	for _, rel := range o.Model.Relations(state.WebsiteRelation) {
		if rel.ID != relationID {
			continue
		}
		rel.LocalUnitData.Set("hostname", "")
		rel.LocalUnitData.Set("port", "")
	}
}

// publishReverseProxyAddress tells each legacy requirer where to reach
// this proxy. Requirers read public-address from the unit databag before
// exposing their service URL.
func (o *Operator) publishReverseProxyAddress() error {
	relations := o.Model.Relations(state.ReverseProxyRelation)
	if len(relations) == 0 {
		return nil
	}
	address, err := o.Model.BindAddress()
	if err != nil {
		return err
	}
	for _, rel := range relations {
		rel.LocalUnitData.Set("public-address", address)
	}
	return nil
}

// publishRouteEndpoints writes the proxied endpoint URLs back to each
// haproxy-route requirer. Requirers quarantined for invalid data get an
// explicit empty list so stale URLs are withdrawn rather than left behind.
func (o *Operator) publishRouteEndpoints(info state.HaproxyRouteRequirersInformation) error {
	relations := o.Model.Relations(state.HaproxyRouteRelation)
	byID := make(map[int]int, len(relations))
	for i, rel := range relations {
		byID[rel.ID] = i
	}

	for _, backend := range info.Backends {
		i, ok := byID[backend.RelationID]
		if !ok {
			continue
		}
		var endpoints []string
		for _, hostname := range backend.HostnameACLs() {
			if len(backend.ApplicationData.Paths) == 0 {
				endpoints = append(endpoints, fmt.Sprintf("https://%s/", hostname))
				continue
			}
			for _, path := range backend.ApplicationData.Paths {
				endpoints = append(endpoints,
					fmt.Sprintf("https://%s/%s/", hostname, strings.Trim(path, "/")))
			}
		}
		if err := relations[i].LocalAppData.EncodeJSON("endpoints", endpoints); err != nil {
			return err
		}
	}

	for _, id := range info.RelationIDsWithInvalidData {
		i, ok := byID[id]
		if !ok {
			continue
		}
		if err := relations[i].LocalAppData.EncodeJSON("endpoints", []string{}); err != nil {
			return err
		}
	}
	return nil
}
