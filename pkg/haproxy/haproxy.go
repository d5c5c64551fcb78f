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

// Package haproxy manages the proxy's package, configuration file and
// service lifecycle.
//
// Every reconcile method follows the same sequence: render the mode's
// template, write the configuration file, validate it, reload the service.
// Validation failures leave the running service on its previous
// configuration.
package haproxy

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dimaqq/haproxy-operator/pkg/state"
	"github.com/dimaqq/haproxy-operator/pkg/templating"
)

const (
	// AptPackageName is the proxy's apt package.
	AptPackageName = "haproxy"
	// AptPackageVersion pins the exact package version; the package is
	// held so unattended upgrades cannot move it.
	AptPackageVersion = "2.8.5-1ubuntu3.3"
	// ProxyUser owns the configuration and certificate files.
	ProxyUser = "haproxy"
	// ServiceName is the systemd unit name.
	ServiceName = "haproxy"

	// DefaultConfigDir is where the configuration lives.
	DefaultConfigDir = "/etc/haproxy"
	// DefaultCertsDir is where per-hostname pem bundles are written.
	DefaultCertsDir = "/var/lib/haproxy/certs"

	configFileName   = "haproxy.cfg"
	dhParamsFileName = "ffdhe2048.txt"

	templateDefault        = "haproxy.cfg.j2"
	templateIngress        = "haproxy_ingress.cfg.j2"
	templateIngressPerUnit = "haproxy_ingress_per_unit.cfg.j2"
	templateLegacy         = "haproxy_legacy.cfg.j2"
	templateRoute          = "haproxy_route.cfg.j2"
)

// Standard ffdhe2048 parameters from the Mozilla SSL configuration
// recommendations, inlined so install does not depend on network access.
// At 2048 bits the well-known parameters are safe to share.
const dhParams = `-----BEGIN DH PARAMETERS-----
MIIBCAKCAQEA//////////+t+FRYortKmq/cViAnPTzx2LnFg84tNpWp4TZBFGQz
+8yTnc4kmz75fS/jY2MMddj2gbICrsRhetPfHtXV/WVhJDP1H18GbtCFY2VVPe0a
87VXE15/V8k1mE8McODmi3fipona8+/och3xWKE2rec1MKzKT0g6eXq8CrGCsyT7
YdEIqUuyyOP7uWrat2DX9GgdT0Kj3jlN9K5W7edjcrsZCwenyO4KbXCeAvzhzffi
7MA0BM0oNC9hkXL+nOmFg/+OTxIy7vKBg8P+OxtMb61zO7X8vC7CIAXFjvGDfRaD
ssbzSibBsu/6iGtCOGEoXJf//////////wIBAg==
-----END DH PARAMETERS-----`

//go:embed templates/*.cfg.j2
var templateFS embed.FS

// Service manages the haproxy installation on this machine.
type Service struct {
	// ConfigDir defaults to DefaultConfigDir.
	ConfigDir string
	// CertsDir defaults to DefaultCertsDir.
	CertsDir string

	Packager  Packager
	Systemd   SystemdManager
	Validator ConfigValidator

	// WriteFile writes a rendered file with proxy-user ownership.
	// Defaults to RenderFile.
	WriteFile func(path, content string, mode os.FileMode) error

	engine *templating.Engine
}

// NewService builds a Service wired to the real system: apt, systemctl and
// the two-phase configuration validator.
func NewService() (*Service, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	engine, err := templating.New(templates)
	if err != nil {
		return nil, err
	}
	return &Service{
		ConfigDir: DefaultConfigDir,
		CertsDir:  DefaultCertsDir,
		Packager:  AptPackager{},
		Systemd:   Systemctl{},
		Validator: &TwoPhaseValidator{},
		WriteFile: RenderFile,
		engine:    engine,
	}, nil
}

func loadTemplates() (map[string]string, error) {
	templates := map[string]string{}
	err := fs.WalkDir(templateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := templateFS.ReadFile(path)
		if err != nil {
			return err
		}
		templates[filepath.Base(path)] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading embedded templates: %w", err)
	}
	return templates, nil
}

// ConfigPath returns the path of the rendered configuration file.
func (s *Service) ConfigPath() string {
	return filepath.Join(s.ConfigDir, configFileName)
}

// Install installs the pinned package version, holds it against upgrades
// and writes the Diffie-Hellman parameters used for TLS key exchange.
func (s *Service) Install(ctx context.Context) error {
	if err := s.Packager.Install(ctx, AptPackageName, AptPackageVersion); err != nil {
		return err
	}
	if err := s.Packager.Hold(ctx, AptPackageName); err != nil {
		return err
	}
	return s.WriteFile(filepath.Join(s.ConfigDir, dhParamsFileName), dhParams, 0o644)
}

// IsActive reports whether the haproxy service is running.
func (s *Service) IsActive(ctx context.Context) bool {
	return s.Systemd.IsActive(ctx, ServiceName)
}

// ReconcileDefault renders the no-backends configuration serving the
// default page.
func (s *Service) ReconcileDefault(ctx context.Context, charmState state.CharmState) error {
	return s.apply(ctx, templateDefault, map[string]any{
		"global_max_connection": charmState.GlobalMaxConnection,
	})
}

// ReconcileIngress renders the configuration for the ingress integration.
func (s *Service) ReconcileIngress(
	ctx context.Context,
	charmState state.CharmState,
	info state.IngressRequirersInformation,
	externalHostname string,
) error {
	backends := make([]map[string]any, 0, len(info.Backends))
	for _, backend := range info.Backends {
		servers := make([]map[string]any, 0, len(backend.Servers))
		for _, server := range backend.Servers {
			servers = append(servers, map[string]any{
				"name":    server.ServerName,
				"address": server.HostnameOrIP,
				"port":    server.Port,
			})
		}
		backends = append(backends, map[string]any{
			"name":         backend.BackendName,
			"path":         backend.BackendName,
			"strip_prefix": backend.StripPrefix,
			"servers":      servers,
		})
	}
	return s.apply(ctx, templateIngress, map[string]any{
		"global_max_connection": charmState.GlobalMaxConnection,
		"external_hostname":     externalHostname,
		"crt_dir":               s.CertsDir,
		"backends":              backends,
	})
}

// ReconcileIngressPerUnit renders the configuration for the
// ingress-per-unit integration, one backend per remote unit.
func (s *Service) ReconcileIngressPerUnit(
	ctx context.Context,
	charmState state.CharmState,
	info state.IngressPerUnitRequirersInformation,
	externalHostname string,
) error {
	backends := make([]map[string]any, 0, len(info.Backends))
	for i, backend := range info.Backends {
		backends = append(backends, map[string]any{
			"name":         backend.BackendName,
			"path":         backend.BackendPath,
			"strip_prefix": backend.StripPrefix,
			"server_name":  fmt.Sprintf("%s-%d", backend.BackendName, i),
			"address":      backend.HostnameOrIP,
			"port":         backend.Port,
		})
	}
	return s.apply(ctx, templateIngressPerUnit, map[string]any{
		"global_max_connection": charmState.GlobalMaxConnection,
		"external_hostname":     externalHostname,
		"crt_dir":               s.CertsDir,
		"backends":              backends,
	})
}

// ReconcileLegacy renders the configuration for the legacy reverseproxy
// integration from pre-rendered service stanzas.
func (s *Service) ReconcileLegacy(ctx context.Context, charmState state.CharmState, services []string) error {
	return s.apply(ctx, templateLegacy, map[string]any{
		"global_max_connection": charmState.GlobalMaxConnection,
		"services":              services,
	})
}

// ReconcileRoute renders the configuration for the haproxy-route
// integration.
func (s *Service) ReconcileRoute(
	ctx context.Context,
	charmState state.CharmState,
	info state.HaproxyRouteRequirersInformation,
) error {
	backends := make([]map[string]any, 0, len(info.Backends))
	for _, backend := range info.Backends {
		check := backend.ApplicationData.Check
		servers := make([]map[string]any, 0, len(backend.Servers))
		for _, server := range backend.Servers {
			servers = append(servers, map[string]any{
				"name":           server.ServerName,
				"address":        server.Address,
				"port":           server.Port,
				"tls":            server.Protocol == "https",
				"maxconn":        server.Maxconn,
				"check":          check.Interval > 0,
				"check_interval": check.Interval,
				"check_rise":     check.Rise,
				"check_fall":     check.Fall,
			})
		}
		entry := map[string]any{
			"name":                   backend.BackendName(),
			"hostname_acls":          backend.HostnameACLs(),
			"path_acl_required":      backend.PathACLRequired(),
			"paths":                  rootedPaths(backend.ApplicationData.Paths),
			"deny_path_acl_required": backend.DenyPathACLRequired(),
			"deny_paths":             rootedPaths(backend.ApplicationData.DenyPaths),
			"load_balancing":         backend.LoadBalancingConfiguration(),
			"rewrites":               backend.RewriteConfigurations(),
			"rate_limited":           backend.ApplicationData.RateLimit != nil,
			"check_path":             check.Path,
			"servers":                servers,
		}
		if backend.ApplicationData.RateLimit != nil {
			entry["rate_limit_connections"] = backend.ApplicationData.RateLimit.ConnectionsPerMinute
		}
		backends = append(backends, entry)
	}
	return s.apply(ctx, templateRoute, map[string]any{
		"global_max_connection": charmState.GlobalMaxConnection,
		"crt_dir":               s.CertsDir,
		"backends":              backends,
		"stick_table_entries":   info.StickTableEntries,
		"peers":                 info.Peers,
	})
}

// rootedPaths gives every requested path a leading slash; requirers send
// them without one.
func rootedPaths(paths []string) []string {
	rooted := make([]string, 0, len(paths))
	for _, path := range paths {
		rooted = append(rooted, "/"+strings.TrimLeft(path, "/"))
	}
	return rooted
}

// apply renders, writes, validates and reloads in that order. The service
// is only reloaded after the written configuration passed validation.
func (s *Service) apply(ctx context.Context, template string, templateContext map[string]any) error {
	rendered, err := s.engine.Render(template, templateContext)
	if err != nil {
		return err
	}
	configPath := s.ConfigPath()
	if err := s.WriteFile(configPath, rendered, 0o644); err != nil {
		return err
	}
	if err := s.Validator.Validate(ctx, rendered, configPath); err != nil {
		return err
	}
	return s.reload(ctx)
}

func (s *Service) reload(ctx context.Context) error {
	if err := s.Systemd.Reload(ctx, ServiceName); err != nil {
		return err
	}
	if !s.IsActive(ctx) {
		return ErrServiceNotActive
	}
	return nil
}
