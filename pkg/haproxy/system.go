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
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
)

// Packager installs and pins the proxy package.
type Packager interface {
	// Install installs the package at exactly the given version.
	Install(ctx context.Context, name, version string) error
	// Hold prevents the package from being upgraded.
	Hold(ctx context.Context, name string) error
}

// SystemdManager drives the proxy's systemd unit.
type SystemdManager interface {
	Reload(ctx context.Context, service string) error
	IsActive(ctx context.Context, service string) bool
}

// AptPackager manages packages through apt-get and apt-mark.
type AptPackager struct{}

// Install implements Packager.
func (AptPackager) Install(ctx context.Context, name, version string) error {
	update := exec.CommandContext(ctx, "apt-get", "update")
	if out, err := update.CombinedOutput(); err != nil {
		return fmt.Errorf("apt-get update: %w: %s", err, out)
	}
	install := exec.CommandContext(ctx, "apt-get", "install", "--yes",
		fmt.Sprintf("%s=%s", name, version))
	install.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	if out, err := install.CombinedOutput(); err != nil {
		return fmt.Errorf("apt-get install %s=%s: %w: %s", name, version, err, out)
	}
	return nil
}

// Hold implements Packager.
func (AptPackager) Hold(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "/usr/bin/apt-mark", "hold", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: apt-mark hold %s: %v: %s", ErrPackagePin, name, err, out)
	}
	return nil
}

// Systemctl drives services through the systemctl binary.
type Systemctl struct{}

// Reload implements SystemdManager.
func (Systemctl) Reload(ctx context.Context, service string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "reload-or-restart", service)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: systemctl reload-or-restart %s: %v: %s",
			ErrServiceReload, service, err, out)
	}
	return nil
}

// IsActive implements SystemdManager.
func (Systemctl) IsActive(ctx context.Context, service string) bool {
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", service)
	return cmd.Run() == nil
}

// RenderFile writes content with the given mode and hands ownership to the
// proxy user so the service can read it after dropping privileges.
func RenderFile(path, content string, mode os.FileMode) error {
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	proxyUser, err := user.Lookup(ProxyUser)
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", ProxyUser, err)
	}
	uid, err := strconv.Atoi(proxyUser.Uid)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(proxyUser.Gid)
	if err != nil {
		return err
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("setting ownership on %s: %w", path, err)
	}
	return nil
}
