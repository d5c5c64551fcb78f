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

// Package ha hands a floating virtual IP between units through an external
// cluster coordinator and registers the proxy as a managed cluster resource.
package ha

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
	"github.com/dimaqq/haproxy-operator/pkg/state"
)

// vipKey is the peer databag key carrying the VIP this unit registered.
const vipKey = "vip"

// HACluster is the boundary to the external cluster coordinator.
type HACluster interface {
	// AddVIP claims the virtual IP for this application.
	AddVIP(ctx context.Context, vip netip.Addr) error

	// RemoveVIP releases a previously claimed virtual IP.
	RemoveVIP(ctx context.Context, vip netip.Addr) error

	// AddSystemdService registers a service unit as a cluster-managed
	// resource.
	AddSystemdService(ctx context.Context, name string) error
}

// Coordinator reconciles the desired HA state against the cluster
// coordinator and records the claimed VIP in the peer databag so other
// units can discover it.
type Coordinator struct {
	Model   relation.Model
	Cluster HACluster

	// ServiceName is the systemd unit registered with the coordinator.
	ServiceName string

	Logger *slog.Logger
}

// NewCoordinator returns a Coordinator managing the haproxy service.
func NewCoordinator(model relation.Model, cluster HACluster, serviceName string) *Coordinator {
	return &Coordinator{
		Model:       model,
		Cluster:     cluster,
		ServiceName: serviceName,
		Logger:      slog.Default(),
	}
}

// Reconcile converges the coordinator onto the desired VIP. It is a no-op
// unless both the hacluster and the peer integration are established.
//
// On a VIP change the old claim is released before the new one is made, so
// two units never hold the same address at once. Reclaiming an unchanged
// VIP is safe.
func (c *Coordinator) Reconcile(ctx context.Context, info state.HAInformation) error {
	if !info.HAIntegrationReady || !info.PeerIntegrationReady {
		c.Logger.Debug("hacluster or peer integration not ready, skipping vip reconciliation")
		return nil
	}

	if info.ConfiguredVIP != nil && *info.ConfiguredVIP != *info.VIP {
		c.Logger.Info("releasing previously registered vip", "vip", info.ConfiguredVIP.String())
		if err := c.Cluster.RemoveVIP(ctx, *info.ConfiguredVIP); err != nil {
			return fmt.Errorf("releasing vip %s: %w", info.ConfiguredVIP, err)
		}
	}

	if err := c.Cluster.AddVIP(ctx, *info.VIP); err != nil {
		return fmt.Errorf("claiming vip %s: %w", info.VIP, err)
	}
	if err := c.Cluster.AddSystemdService(ctx, c.ServiceName); err != nil {
		return fmt.Errorf("registering service %s: %w", c.ServiceName, err)
	}

	peers := c.Model.Relations(state.HaproxyPeerRelation)
	if len(peers) > 0 {
		peers[0].LocalUnitData.Set(vipKey, info.VIP.String())
	}
	c.Logger.Info("registered vip with cluster coordinator", "vip", info.VIP.String())
	return nil
}
