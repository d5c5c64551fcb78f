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
	"context"
	"fmt"
	"sort"

	"github.com/dimaqq/haproxy-operator/pkg/legacy"
	"github.com/dimaqq/haproxy-operator/pkg/state"
)

// reconcile rebuilds the desired state from the model and converges the
// proxy onto it. One pass, no persisted state.
func (o *Operator) reconcile(ctx context.Context) error {
	charmState, err := state.NewCharmState(ctx, o.Model, o.FileMax, o.Logger)
	if err != nil {
		o.lastMode = state.ModeInvalid
		return err
	}
	o.lastMode = charmState.Mode

	haInfo, err := state.NewHAInformation(o.Model)
	if err != nil {
		return err
	}
	if err := o.HA.Reconcile(ctx, haInfo); err != nil {
		return err
	}

	switch charmState.Mode {
	case state.ModeIngress:
		return o.reconcileIngress(ctx, charmState)
	case state.ModeIngressPerUnit:
		return o.reconcileIngressPerUnit(ctx, charmState)
	case state.ModeLegacy:
		return o.reconcileLegacy(ctx, charmState)
	case state.ModeHaproxyRoute:
		return o.reconcileRoute(ctx, charmState)
	default:
		return o.HAProxy.ReconcileDefault(ctx, charmState)
	}
}

// reconcileTLS validates the TLS preconditions and installs every issued
// certificate bundle. Certificate reconciliation must complete before any
// TLS-terminating configuration is rendered, since the rendered file
// references bundles by path.
//
// When the external hostname's certificate has not been issued yet a CSR
// is submitted and the pass is deferred with ErrTLSNotReady.
func (o *Operator) reconcileTLS(ctx context.Context) (state.TLSInformation, error) {
	tlsInfo, err := state.NewTLSInformation(o.Model, o.Certs)
	if err != nil {
		return state.TLSInformation{}, err
	}

	if _, ok := tlsInfo.Certificates[tlsInfo.ExternalHostname]; !ok {
		if err := o.Certs.RequestCertificate(tlsInfo.ExternalHostname); err != nil {
			return state.TLSInformation{}, err
		}
		return state.TLSInformation{}, fmt.Errorf(
			"%w: certificate for %s not issued yet", state.ErrTLSNotReady, tlsInfo.ExternalHostname)
	}

	if err := o.Certs.CertificateAvailable(tlsInfo); err != nil {
		return state.TLSInformation{}, err
	}
	return tlsInfo, nil
}

func (o *Operator) reconcileIngress(ctx context.Context, charmState state.CharmState) error {
	tlsInfo, err := o.reconcileTLS(ctx)
	if err != nil {
		return err
	}
	relations := o.Model.Relations(state.IngressRelation)
	info, err := state.NewIngressRequirersInformation(relations)
	if err != nil {
		return err
	}
	if err := o.HAProxy.ReconcileIngress(ctx, charmState, info, tlsInfo.ExternalHostname); err != nil {
		return err
	}
	return o.publishIngressURLs(info, tlsInfo.ExternalHostname)
}

func (o *Operator) reconcileIngressPerUnit(ctx context.Context, charmState state.CharmState) error {
	tlsInfo, err := o.reconcileTLS(ctx)
	if err != nil {
		return err
	}
	relations := o.Model.Relations(state.IngressPerUnitRelation)
	info, err := state.NewIngressPerUnitRequirersInformation(relations)
	if err != nil {
		return err
	}
	if err := o.HAProxy.ReconcileIngressPerUnit(ctx, charmState, info, tlsInfo.ExternalHostname); err != nil {
		return err
	}
	return o.publishIngressPerUnitURLs(info, tlsInfo.ExternalHostname)
}

func (o *Operator) reconcileLegacy(ctx context.Context, charmState state.CharmState) error {
	if err := o.publishReverseProxyAddress(); err != nil {
		return err
	}
	relations := o.Model.Relations(state.ReverseProxyRelation)
	services, err := legacy.ServicesFromRelations(relations, o.IsProxy, o.Logger)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		// Requirers joined but have not published any server yet.
		return o.HAProxy.ReconcileDefault(ctx, charmState)
	}
	stanzas, err := o.Legacy.GenerateServiceConfig(services)
	if err != nil {
		return err
	}
	if err := o.HAProxy.ReconcileLegacy(ctx, charmState, stanzas); err != nil {
		return err
	}
	return o.publishWebsite()
}

func (o *Operator) reconcileRoute(ctx context.Context, charmState state.CharmState) error {
	tlsInfo, err := o.reconcileTLS(ctx)
	if err != nil {
		return err
	}
	peers, err := o.peerAddresses()
	if err != nil {
		return err
	}
	relations := o.Model.Relations(state.HaproxyRouteRelation)
	info, err := state.NewHaproxyRouteRequirersInformation(relations, tlsInfo.ExternalHostname, peers, o.Logger)
	if err != nil {
		return err
	}
	if err := o.HAProxy.ReconcileRoute(ctx, charmState, info); err != nil {
		return err
	}
	return o.publishRouteEndpoints(info)
}

// peerAddresses lists this unit's bind address plus every peer unit's
// private address, sorted, for the stick-table peers section.
func (o *Operator) peerAddresses() ([]string, error) {
	address, err := o.Model.BindAddress()
	if err != nil {
		return nil, err
	}
	addresses := []string{address}
	for _, rel := range o.Model.Relations(state.HaproxyPeerRelation) {
		for _, unitName := range rel.UnitNames() {
			if peer := rel.Units[unitName].Get("private-address"); peer != "" {
				addresses = append(addresses, peer)
			}
		}
	}
	sort.Strings(addresses)
	return addresses, nil
}
