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

package haproxy

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimaqq/haproxy-operator/pkg/state"
)

type fakePackager struct {
	installed []string
	held      []string
	holdErr   error
}

func (f *fakePackager) Install(_ context.Context, name, version string) error {
	f.installed = append(f.installed, name+"="+version)
	return nil
}

func (f *fakePackager) Hold(_ context.Context, name string) error {
	f.held = append(f.held, name)
	return f.holdErr
}

type fakeSystemd struct {
	reloads   int
	reloadErr error
	active    bool
}

func (f *fakeSystemd) Reload(context.Context, string) error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeSystemd) IsActive(context.Context, string) bool {
	return f.active
}

type fakeValidator struct {
	err      error
	lastSeen string
}

func (f *fakeValidator) Validate(_ context.Context, config string, _ string) error {
	f.lastSeen = config
	return f.err
}

func testService(t *testing.T) (*Service, *fakePackager, *fakeSystemd, *fakeValidator, *string) {
	t.Helper()
	service, err := NewService()
	require.NoError(t, err)

	packager := &fakePackager{}
	systemd := &fakeSystemd{active: true}
	validator := &fakeValidator{}
	var written string

	service.ConfigDir = t.TempDir()
	service.CertsDir = "/var/lib/haproxy/certs"
	service.Packager = packager
	service.Systemd = systemd
	service.Validator = validator
	service.WriteFile = func(path, content string, mode os.FileMode) error {
		written = content
		return os.WriteFile(path, []byte(content), mode)
	}
	return service, packager, systemd, validator, &written
}

func TestInstall(t *testing.T) {
	service, packager, _, _, written := testService(t)

	require.NoError(t, service.Install(context.Background()))
	assert.Equal(t, []string{"haproxy=2.8.5-1ubuntu3.3"}, packager.installed)
	assert.Equal(t, []string{"haproxy"}, packager.held)
	assert.Contains(t, *written, "BEGIN DH PARAMETERS")
}

func TestInstallHoldFailure(t *testing.T) {
	service, packager, _, _, _ := testService(t)
	packager.holdErr = ErrPackagePin

	assert.ErrorIs(t, service.Install(context.Background()), ErrPackagePin)
}

func TestReconcileDefault(t *testing.T) {
	service, _, systemd, _, written := testService(t)

	err := service.ReconcileDefault(context.Background(), state.CharmState{
		Mode:                state.ModeNoProxy,
		GlobalMaxConnection: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, systemd.reloads)
	assert.Contains(t, *written, "maxconn 4096")
	assert.Contains(t, *written, "Default page for the haproxy-operator charm")
}

func TestReconcileIngress(t *testing.T) {
	service, _, _, _, written := testService(t)

	info := state.IngressRequirersInformation{Backends: []state.HAProxyBackend{{
		BackendName: "prod-web",
		StripPrefix: true,
		Servers: []state.HAProxyServer{
			{ServerName: "prod-web-0", HostnameOrIP: "10.0.0.1", Port: 8080},
		},
	}}}

	err := service.ReconcileIngress(context.Background(),
		state.CharmState{Mode: state.ModeIngress, GlobalMaxConnection: 1024},
		info, "proxy.example.com")
	require.NoError(t, err)

	assert.Contains(t, *written, "use_backend prod-web if { req.hdr(host) -i proxy.example.com } { path -m beg /prod-web }")
	assert.Contains(t, *written, "backend prod-web")
	assert.Contains(t, *written, "http-request replace-path /prod-web(/)?(.*)")
	assert.Contains(t, *written, "server prod-web-0 10.0.0.1:8080 check")
	assert.Contains(t, *written, "bind 0.0.0.0:443 ssl crt /var/lib/haproxy/certs strict-sni")
}

func TestReconcileIngressPerUnit(t *testing.T) {
	service, _, _, _, written := testService(t)

	info := state.IngressPerUnitRequirersInformation{Backends: []state.PerUnitBackend{{
		BackendName:  "prod_worker_0",
		BackendPath:  "prod-worker/0",
		HostnameOrIP: "10.0.0.5",
		Port:         9000,
	}}}

	err := service.ReconcileIngressPerUnit(context.Background(),
		state.CharmState{Mode: state.ModeIngressPerUnit, GlobalMaxConnection: 1024},
		info, "proxy.example.com")
	require.NoError(t, err)
	assert.Contains(t, *written, "backend prod_worker_0")
	assert.Contains(t, *written, "path -m beg /prod-worker/0")
	assert.Contains(t, *written, "server prod_worker_0-0 10.0.0.5:9000 check")
}

func TestReconcileLegacy(t *testing.T) {
	service, _, _, _, written := testService(t)

	stanza := "frontend haproxy-80\n    bind 0.0.0.0:80\n    default_backend web\n\nbackend web\n    server web-0 10.0.0.1:8080"
	err := service.ReconcileLegacy(context.Background(),
		state.CharmState{Mode: state.ModeLegacy, GlobalMaxConnection: 1024},
		[]string{stanza})
	require.NoError(t, err)
	assert.Contains(t, *written, "frontend haproxy-80")
	assert.Contains(t, *written, "server web-0 10.0.0.1:8080")
}

func TestReconcileRoute(t *testing.T) {
	service, _, _, _, written := testService(t)

	info := state.HaproxyRouteRequirersInformation{
		Backends: []*state.RouteBackend{{
			RelationID: 1,
			ApplicationData: state.RouteRequirerData{
				Service:  "api",
				Ports:    []int{8080},
				Hostname: "api.example.com",
				LoadBalancing: state.LoadBalancingConfig{
					Algorithm: state.AlgorithmCookie, Cookie: "SESSION",
				},
				RateLimit: &state.RateLimitPolicy{ConnectionsPerMinute: 100},
				Rewrites: []state.RewriteRule{
					{Method: "set-path", Expression: "/v1"},
				},
			},
			Servers: []state.RouteServer{
				{ServerName: "api_8080_0", Address: "10.0.0.1", Port: 8080},
			},
		}},
		StickTableEntries: []string{"api_rate_limit"},
		Peers:             []string{"10.1.0.1"},
	}

	err := service.ReconcileRoute(context.Background(),
		state.CharmState{Mode: state.ModeHaproxyRoute, GlobalMaxConnection: 1024}, info)
	require.NoError(t, err)

	assert.Contains(t, *written, "peers haproxy_peers")
	assert.Contains(t, *written, "peer haproxy0 10.1.0.1:50000")
	assert.Contains(t, *written, "use_backend api if { req.hdr(host) -i api.example.com }")
	assert.Contains(t, *written, "backend api_rate_limit")
	assert.Contains(t, *written, "stick-table type ip size 100k expire 30s store http_req_rate(1m) peers haproxy_peers")
	assert.Contains(t, *written, "balance hash req.cookie(SESSION)")
	assert.Contains(t, *written, "http-request set-path /v1")
	assert.Contains(t, *written, "http-request track-sc0 src table api_rate_limit")
	assert.Contains(t, *written, "server api_8080_0 10.0.0.1:8080")
}

func TestReconcileRoutePathRouting(t *testing.T) {
	service, _, _, _, written := testService(t)

	info := state.HaproxyRouteRequirersInformation{
		Backends: []*state.RouteBackend{{
			RelationID: 1,
			ApplicationData: state.RouteRequirerData{
				Service:   "api",
				Ports:     []int{8080},
				Hostname:  "api.example.com",
				Paths:     []string{"v1", "v2"},
				DenyPaths: []string{"internal"},
			},
			Servers: []state.RouteServer{
				{ServerName: "api_8080_0", Address: "10.0.0.1", Port: 8080},
			},
		}},
	}

	err := service.ReconcileRoute(context.Background(),
		state.CharmState{Mode: state.ModeHaproxyRoute, GlobalMaxConnection: 1024}, info)
	require.NoError(t, err)

	assert.Contains(t, *written,
		"http-request deny if { req.hdr(host) -i api.example.com } { path -m beg /internal }")
	assert.Contains(t, *written,
		"use_backend api if { req.hdr(host) -i api.example.com } { path -m beg /v1 /v2 }")
}

func TestApplyValidationFailureSkipsReload(t *testing.T) {
	service, _, systemd, validator, _ := testService(t)
	validator.err = ErrConfigValidation

	err := service.ReconcileDefault(context.Background(),
		state.CharmState{Mode: state.ModeNoProxy, GlobalMaxConnection: 1024})
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.Zero(t, systemd.reloads)
}

func TestApplyServiceNotActiveAfterReload(t *testing.T) {
	service, _, systemd, _, _ := testService(t)
	systemd.active = false

	err := service.ReconcileDefault(context.Background(),
		state.CharmState{Mode: state.ModeNoProxy, GlobalMaxConnection: 1024})
	assert.ErrorIs(t, err, ErrServiceNotActive)
}

func TestApplyReloadFailure(t *testing.T) {
	service, _, systemd, _, _ := testService(t)
	systemd.reloadErr = errors.New("reload failed")

	err := service.ReconcileDefault(context.Background(),
		state.CharmState{Mode: state.ModeNoProxy, GlobalMaxConnection: 1024})
	assert.Error(t, err)
}
