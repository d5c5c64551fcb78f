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
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// Options that must appear in both the frontend and the backend stanza.
var dupeOptions = []string{
	"mode tcp",
	"option tcplog",
	"mode http",
	"option httplog",
}

// Option prefixes that only make sense in a frontend; everything else goes
// to the backend.
var frontendOnlyOptions = []string{
	"acl",
	"backlog",
	"bind",
	"capture cookie",
	"capture request header",
	"capture response header",
	"clitimeout",
	"default_backend",
	"http-request",
	"maxconn",
	"monitor fail",
	"monitor-net",
	"monitor-uri",
	"option accept-invalid-http-request",
	"option clitcpka",
	"option contstats",
	"option dontlog-normal",
	"option dontlognull",
	"option http-use-proxy-header",
	"option log-separate-errors",
	"option logasap",
	"option socket-stats",
	"option tcp-smart-accept",
	"rate-limit sessions",
	"redirect",
	"tcp-request content accept",
	"tcp-request content reject",
	"tcp-request inspect-delay",
	"timeout client",
	"timeout clitimeout",
	"use_backend",
}

// Renderer turns aggregated services into configuration stanzas, writing
// any carried errorfiles and certificates to the lib directory as a side
// effect.
type Renderer struct {
	// LibDir is where per-service errorfiles and pem files are written.
	// Defaults to DefaultLibDir when empty.
	LibDir string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (r *Renderer) libDir() string {
	if r.LibDir == "" {
		return DefaultLibDir
	}
	return r.LibDir
}

func (r *Renderer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// GenerateServiceConfig renders one listen stanza per service.
func (r *Renderer) GenerateServiceConfig(services []*Service) ([]string, error) {
	var stanzas []string
	for _, service := range services {
		if err := r.writeErrorfiles(service); err != nil {
			return nil, err
		}
		if err := r.writeCertificates(service); err != nil {
			return nil, err
		}
		stanza := r.createListenStanza(service)
		if stanza == "" {
			continue
		}
		stanzas = append(stanzas, stanza)
	}
	return stanzas, nil
}

// createListenStanza renders the frontend plus backend stanzas for one
// service. A service without a name, host or port renders nothing.
//
// The original charm prefixed frontend names with the unit name; that came
// from an environment variable newer platform versions no longer set, so
// the frontend is named after the listen port instead.
func (r *Renderer) createListenStanza(service *Service) string {
	if service.Name == "" || service.Host == "" || service.Port == nil {
		return ""
	}
	feOptions, beOptions := partitionOptions(service.ServiceOptions)

	var config []string
	config = append(config, fmt.Sprintf("frontend haproxy-%d", *service.Port))

	bind := fmt.Sprintf("    bind %s:%d", service.Host, *service.Port)
	if len(service.Crts) > 0 {
		bind += " ssl"
		if len(service.Crts) == 1 && isDir(service.Crts[0]) {
			r.logger().Info("service configured to use a certificate directory", "path", service.Crts[0])
			bind += fmt.Sprintf(" crt %s no-sslv3", service.Crts[0])
		} else {
			for i, crt := range service.Crts {
				var path string
				if crt == "DEFAULT" {
					path = filepath.Join(r.libDir(), "default.pem")
				} else {
					path = filepath.Join(r.serviceLibDir(service.Name), fmt.Sprintf("%d.pem", i))
				}
				// SSLv3 stays off, it is vulnerable to POODLE.
				bind += fmt.Sprintf(" crt %s no-sslv3", path)
			}
		}
	}
	config = append(config, bind)
	config = append(config, "    default_backend "+service.Name)
	for _, option := range feOptions {
		config = append(config, "    "+strings.TrimSpace(option))
	}

	errorfiles := r.errorfileLines(service)
	config = appendBackend(config, service.Name, beOptions, errorfiles, service.Servers)
	for _, backend := range service.Backends {
		config = appendBackend(config, backend.Name, beOptions, errorfiles, backend.Servers)
	}

	return strings.Join(config, "\n")
}

// appendBackend appends a backend stanza: options, errorfiles and one
// server line per entry. The {i} placeholder in server options is replaced
// with the server's index.
func appendBackend(config []string, name string, options, errorfiles []string, servers []ServerEntry) []string {
	config = append(config, "", "backend "+name)
	for _, option := range options {
		config = append(config, "    "+strings.TrimSpace(option))
	}
	config = append(config, errorfiles...)
	for i, server := range servers {
		line := fmt.Sprintf("    server %s %s:%s", server.Name, server.Address, server.Port)
		if len(server.Options) > 0 {
			line += " " + strings.Join(server.Options, " ")
		}
		config = append(config, strings.ReplaceAll(line, "{i}", strconv.Itoa(i)))
	}
	return config
}

// partitionOptions splits the requested service options into frontend and
// backend lists. Mode and logging options are duplicated into both.
func partitionOptions(serviceOptions []string) (fe, be []string) {
	for _, dupe := range dupeOptions {
		for _, option := range serviceOptions {
			if strings.HasPrefix(dupe, option) {
				fe = append(fe, dupe)
				be = append(be, dupe)
				break
			}
		}
	}
	for _, option := range serviceOptions {
		trimmed := strings.TrimSpace(option)
		frontend := false
		for _, prefix := range frontendOnlyOptions {
			if strings.HasPrefix(trimmed, prefix) {
				frontend = true
				break
			}
		}
		if frontend {
			if !contains(fe, option) {
				fe = append(fe, option)
			}
		} else if !contains(be, option) {
			be = append(be, option)
		}
	}
	return fe, be
}

// errorfileLines renders the shared errorfile directives. Errorfiles are
// common for every backend of a service.
func (r *Renderer) errorfileLines(service *Service) []string {
	var lines []string
	for _, errorfile := range service.Errorfiles {
		path := filepath.Join(r.serviceLibDir(service.Name),
			fmt.Sprintf("%d.http", errorfile.HTTPStatus))
		lines = append(lines, fmt.Sprintf("    errorfile %d %s", errorfile.HTTPStatus, path))
	}
	return lines
}

// writeErrorfiles decodes and writes the service's custom error pages.
func (r *Renderer) writeErrorfiles(service *Service) error {
	for _, errorfile := range service.Errorfiles {
		content, err := base64.StdEncoding.DecodeString(errorfile.Content)
		if err != nil {
			return fmt.Errorf("decoding errorfile for service %s: %w", service.Name, err)
		}
		dir, err := r.ensureServiceLibDir(service.Name)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.http", errorfile.HTTPStatus))
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("writing errorfile %s: %w", path, err)
		}
	}
	return nil
}

// writeCertificates writes the service's inline certificates to per-service
// pem files readable only by the proxy user. DEFAULT and EXTERNAL markers
// and certificate directory paths are left alone.
func (r *Renderer) writeCertificates(service *Service) error {
	if len(service.Crts) == 1 && isDir(service.Crts[0]) {
		return nil
	}
	for i, crt := range service.Crts {
		if crt == "DEFAULT" || crt == "EXTERNAL" {
			continue
		}
		content, err := base64.StdEncoding.DecodeString(crt)
		if err != nil {
			return fmt.Errorf("decoding certificate for service %s: %w", service.Name, err)
		}
		dir, err := r.ensureServiceLibDir(service.Name)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.pem", i))
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return fmt.Errorf("writing certificate %s: %w", path, err)
		}
		chownToProxyUser(path, r.logger())
	}
	return nil
}

func (r *Renderer) serviceLibDir(serviceName string) string {
	return filepath.Join(r.libDir(), "service_"+serviceName)
}

func (r *Renderer) ensureServiceLibDir(serviceName string) (string, error) {
	dir := r.serviceLibDir(serviceName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating service lib dir %s: %w", dir, err)
	}
	return dir, nil
}

func chownToProxyUser(path string, logger *slog.Logger) {
	proxyUser, err := user.Lookup("haproxy")
	if err != nil {
		logger.Warn("haproxy user not found, leaving file ownership unchanged", "path", path)
		return
	}
	uid, err := strconv.Atoi(proxyUser.Uid)
	if err != nil {
		return
	}
	if err := os.Chown(path, uid, -1); err != nil {
		logger.Warn("cannot change file ownership", "path", path, "error", err)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
