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

// Package metrics exposes the operator's Prometheus metrics.
//
// All metrics are registered on an instance-based registry, never the
// global default registerer, so a discarded registry and its metrics can
// be garbage collected.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the operator's metric set, registered on a single registry.
type Metrics struct {
	Registry *prometheus.Registry

	// ReconciliationsTotal counts reconciliation passes by proxy mode and
	// outcome (success, blocked, waiting, error).
	ReconciliationsTotal *prometheus.CounterVec

	// ReconciliationDuration observes wall-clock seconds per pass.
	ReconciliationDuration prometheus.Histogram

	// EventsDeferred counts events pushed back onto the queue by kind.
	EventsDeferred *prometheus.CounterVec

	// QueueDepth is the number of events currently pending.
	QueueDepth prometheus.Gauge

	// CertificateWritesTotal counts certificate bundles installed on disk.
	CertificateWritesTotal prometheus.Counter

	// ConfigValidationFailures counts renders rejected by the proxy's own
	// syntax checker.
	ConfigValidationFailures prometheus.Counter

	// ServiceReloadFailures counts reload attempts that failed or left the
	// service inactive.
	ServiceReloadFailures prometheus.Counter
}

// New creates a Metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		ReconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haproxy_operator_reconciliations_total",
			Help: "Reconciliation passes by proxy mode and outcome.",
		}, []string{"mode", "outcome"}),
		ReconciliationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "haproxy_operator_reconciliation_duration_seconds",
			Help:    "Duration of a reconciliation pass.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		EventsDeferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haproxy_operator_events_deferred_total",
			Help: "Events deferred for redelivery, by event kind.",
		}, []string{"kind"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "haproxy_operator_event_queue_depth",
			Help: "Events currently waiting in the queue.",
		}),
		CertificateWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "haproxy_operator_certificate_writes_total",
			Help: "Certificate bundles written to the certificate directory.",
		}),
		ConfigValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "haproxy_operator_config_validation_failures_total",
			Help: "Rendered configurations rejected by the syntax check.",
		}),
		ServiceReloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "haproxy_operator_service_reload_failures_total",
			Help: "Service reloads that failed or left the service inactive.",
		}),
	}
}

// Handler returns the HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
