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

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterAndServe(t *testing.T) {
	m := New()
	m.ReconciliationsTotal.WithLabelValues("ingress", "success").Inc()
	m.EventsDeferred.WithLabelValues("config-changed").Inc()
	m.QueueDepth.Set(3)
	m.CertificateWritesTotal.Inc()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	output := string(body)
	assert.Contains(t, output, "haproxy_operator_reconciliations_total")
	assert.Contains(t, output, `mode="ingress"`)
	assert.Contains(t, output, "haproxy_operator_event_queue_depth 3")
}

func TestIndependentRegistries(t *testing.T) {
	first := New()
	second := New()
	first.CertificateWritesTotal.Inc()

	families, err := second.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if family.GetName() == "haproxy_operator_certificate_writes_total" {
				assert.Zero(t, metric.GetCounter().GetValue())
			}
		}
	}
}
