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

// Package operator is the reconciliation core: it consumes lifecycle and
// integration events one at a time, rebuilds the desired state from the
// model, and converges the haproxy service onto it.
package operator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dimaqq/haproxy-operator/pkg/events"
	"github.com/dimaqq/haproxy-operator/pkg/ha"
	"github.com/dimaqq/haproxy-operator/pkg/haproxy"
	"github.com/dimaqq/haproxy-operator/pkg/legacy"
	"github.com/dimaqq/haproxy-operator/pkg/metrics"
	"github.com/dimaqq/haproxy-operator/pkg/relation"
	"github.com/dimaqq/haproxy-operator/pkg/state"
	"github.com/dimaqq/haproxy-operator/pkg/tlsrelation"
)

// Operator owns one unit's reconciliation loop.
//
// Events are processed strictly one at a time to completion; no state
// survives between passes except what lives in the model, the secret store
// and the filesystem.
type Operator struct {
	Model   relation.Model
	HAProxy *haproxy.Service
	Certs   *tlsrelation.Store
	HA      *ha.Coordinator
	Queue   *events.Queue
	Metrics *metrics.Metrics
	Status  StatusReporter

	// FileMax queries the fd ceiling used to validate global-maxconn.
	FileMax state.FileMaxFunc

	// Legacy renders the reverseproxy listen stanzas.
	Legacy *legacy.Renderer

	// IsProxy reports whether a legacy service is marked as a second hop.
	IsProxy func(name string) bool

	Logger *slog.Logger

	// lastMode is the mode resolved by the most recent pass, kept for
	// metric labels only.
	lastMode state.ProxyMode
}

// New wires an Operator with production defaults.
func New(
	model relation.Model,
	service *haproxy.Service,
	certs *tlsrelation.Store,
	coordinator *ha.Coordinator,
	queue *events.Queue,
) *Operator {
	logger := slog.Default().With("component", "operator", "unit", model.UnitName())
	o := &Operator{
		Model:    model,
		HAProxy:  service,
		Certs:    certs,
		HA:       coordinator,
		Queue:    queue,
		Metrics:  metrics.New(),
		Status:   &LogStatusReporter{},
		FileMax:  state.SysctlFileMax,
		Legacy:   &legacy.Renderer{Logger: slog.Default().With("component", "legacy", "unit", model.UnitName())},
		IsProxy:  legacy.IsProxyMarker(legacy.DefaultServiceConfigDir),
		Logger:   logger,
		lastMode: state.ModeNoProxy,
	}
	certs.OnBundleWrite = func(string) {
		o.Metrics.CertificateWritesTotal.Inc()
	}
	return o
}

// Run processes events until the queue is closed or ctx is cancelled.
func (o *Operator) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		o.Queue.Close()
	}()

	for {
		event, ok := o.Queue.Pop()
		if !ok {
			return ctx.Err()
		}
		o.Metrics.QueueDepth.Set(float64(o.Queue.Len()))
		o.Handle(ctx, event)
	}
}

// Handle runs one event through its handler and translates the outcome
// into a unit status and an optional redelivery. This is the single place
// where the error taxonomy maps to status; handlers never set status
// themselves.
func (o *Operator) Handle(ctx context.Context, event events.Event) {
	start := time.Now()
	err := o.dispatch(ctx, event)
	o.Metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	defer func() {
		o.Metrics.ReconciliationsTotal.WithLabelValues(string(o.lastMode), outcome).Inc()
	}()

	if err == nil {
		o.Status.SetStatus(Status{Kind: StatusActive})
		return
	}

	var invalidConfig *state.InvalidConfigError
	var invalidData *state.InvalidDataError
	var invalidPorts *legacy.InvalidPortError

	switch {
	case errors.Is(err, state.ErrTooManyIntegrations):
		outcome = "blocked"
		o.Status.SetStatus(Status{Kind: StatusBlocked, Message: err.Error()})

	case errors.As(err, &invalidConfig), errors.As(err, &invalidData), errors.As(err, &invalidPorts):
		outcome = "blocked"
		o.Status.SetStatus(Status{Kind: StatusBlocked, Message: err.Error()})

	case errors.Is(err, state.ErrTLSNotReady):
		outcome = "waiting"
		o.Status.SetStatus(Status{Kind: StatusWaiting, Message: err.Error()})
		o.deferEvent(event)

	case errors.Is(err, haproxy.ErrConfigValidation):
		outcome = "waiting"
		o.Metrics.ConfigValidationFailures.Inc()
		o.Status.SetStatus(Status{Kind: StatusWaiting, Message: err.Error()})
		o.deferEvent(event)

	case errors.Is(err, haproxy.ErrServiceReload), errors.Is(err, haproxy.ErrServiceNotActive):
		outcome = "waiting"
		o.Metrics.ServiceReloadFailures.Inc()
		o.Status.SetStatus(Status{Kind: StatusWaiting, Message: err.Error()})
		o.deferEvent(event)

	default:
		outcome = "error"
		o.Logger.Error("event handling failed", "kind", event.Kind(), "error", err)
		o.Status.SetStatus(Status{Kind: StatusError, Message: err.Error()})
	}
}

func (o *Operator) deferEvent(event events.Event) {
	o.Metrics.EventsDeferred.WithLabelValues(event.Kind()).Inc()
	o.Queue.Defer(event)
}

func (o *Operator) dispatch(ctx context.Context, event events.Event) error {
	o.Logger.Debug("handling event", "kind", event.Kind())

	switch e := event.(type) {
	case *events.InstallEvent:
		o.Status.SetStatus(Status{Kind: StatusMaintenance, Message: "installing haproxy"})
		if err := o.HAProxy.Install(ctx); err != nil {
			return err
		}
		return o.reconcile(ctx)

	case *events.ConfigChangedEvent:
		return o.reconcile(ctx)

	case *events.RelationChangedEvent:
		return o.reconcile(ctx)

	case *events.RelationBrokenEvent:
		if e.Endpoint == state.CertificatesRelation {
			if err := o.Certs.AllCertificatesInvalidated(); err != nil {
				return err
			}
		}
		err := o.reconcile(ctx)
		if e.Endpoint == state.WebsiteRelation {
			// After the pass so the withdrawal is the last write on the
			// departing relation.
			o.clearWebsite(e.RelationID)
		}
		return err

	case *events.CertificateAvailableEvent:
		return o.reconcile(ctx)

	case *events.CertificateExpiringEvent:
		return o.Certs.CertificateExpiring(e.Certificate)

	case *events.CertificateInvalidatedEvent:
		if err := o.Certs.CertificateInvalidated(e.Certificate); err != nil {
			return err
		}
		return o.reconcile(ctx)

	case *events.AllCertificatesInvalidatedEvent:
		if err := o.Certs.AllCertificatesInvalidated(); err != nil {
			return err
		}
		return o.reconcile(ctx)
	}

	o.Logger.Warn("ignoring unknown event", "kind", event.Kind())
	return nil
}
