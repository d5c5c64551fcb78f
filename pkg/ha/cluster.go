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

package ha

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
	"github.com/dimaqq/haproxy-operator/pkg/state"
)

// Databag keys of the hacluster interface. The coordinator application on
// the other side reads these JSON maps and builds the corresponding
// pacemaker resources.
const (
	resourcesKey      = "json_resources"
	resourceParamsKey = "json_resource_params"
	initServicesKey   = "json_init_services"
)

// RelationCluster implements HACluster over the hacluster relation databag:
// resource requests are published as JSON maps in the local unit data and
// picked up by the external coordinator.
type RelationCluster struct {
	Model relation.Model
}

// NewRelationCluster returns an HACluster bound to the model's hacluster
// relation.
func NewRelationCluster(model relation.Model) *RelationCluster {
	return &RelationCluster{Model: model}
}

func (c *RelationCluster) databag() (relation.Databag, error) {
	relations := c.Model.Relations(state.HAClusterRelation)
	if len(relations) == 0 {
		return nil, fmt.Errorf("hacluster relation not established")
	}
	return relations[0].LocalUnitData, nil
}

func (c *RelationCluster) readMap(bag relation.Databag, key string) (map[string]string, error) {
	out := map[string]string{}
	if !bag.Has(key) {
		return out, nil
	}
	if err := bag.DecodeJSON(key, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return out, nil
}

func vipResourceName(vip netip.Addr) string {
	return "res_haproxy_" + vip.String() + "_vip"
}

func (c *RelationCluster) AddVIP(ctx context.Context, vip netip.Addr) error {
	bag, err := c.databag()
	if err != nil {
		return err
	}
	resources, err := c.readMap(bag, resourcesKey)
	if err != nil {
		return err
	}
	params, err := c.readMap(bag, resourceParamsKey)
	if err != nil {
		return err
	}
	name := vipResourceName(vip)
	resources[name] = "ocf:heartbeat:IPaddr2"
	params[name] = fmt.Sprintf("params ip=%q", vip.String())
	if err := bag.EncodeJSON(resourcesKey, resources); err != nil {
		return err
	}
	return bag.EncodeJSON(resourceParamsKey, params)
}

func (c *RelationCluster) RemoveVIP(ctx context.Context, vip netip.Addr) error {
	bag, err := c.databag()
	if err != nil {
		return err
	}
	resources, err := c.readMap(bag, resourcesKey)
	if err != nil {
		return err
	}
	params, err := c.readMap(bag, resourceParamsKey)
	if err != nil {
		return err
	}
	name := vipResourceName(vip)
	delete(resources, name)
	delete(params, name)
	if err := bag.EncodeJSON(resourcesKey, resources); err != nil {
		return err
	}
	return bag.EncodeJSON(resourceParamsKey, params)
}

func (c *RelationCluster) AddSystemdService(ctx context.Context, service string) error {
	bag, err := c.databag()
	if err != nil {
		return err
	}
	services, err := c.readMap(bag, initServicesKey)
	if err != nil {
		return err
	}
	services["res_haproxy_"+service] = service
	return bag.EncodeJSON(initServicesKey, services)
}
