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

package state

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Configuration option names.
const (
	GlobalMaxConnOption    = "global-maxconn"
	ExternalHostnameOption = "external-hostname"
	VIPOption              = "vip"
)

// FileMaxFunc queries the system-wide file descriptor ceiling.
//
// The validated maxconn must not exceed this value. A query failure is not
// fatal: the ceiling check is skipped with a warning, matching the behavior
// when sysctl output cannot be parsed.
type FileMaxFunc func(ctx context.Context) (int, error)

// SysctlFileMax reads fs.file-max via the sysctl binary.
func SysctlFileMax(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "/usr/sbin/sysctl", "fs.file-max").CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("running sysctl fs.file-max: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	_, value, found := strings.Cut(line, "=")
	if !found {
		return 0, fmt.Errorf("unexpected sysctl output: %q", line)
	}
	max, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parsing sysctl output %q: %w", value, err)
	}
	return max, nil
}

// CharmConfig holds the operator's validated scalar configuration.
type CharmConfig struct {
	// GlobalMaxConnection is the maximum per-process number of concurrent
	// connections. Validated to be positive and within the system's file
	// descriptor ceiling.
	GlobalMaxConnection int
}

// NewCharmConfig validates the raw configuration values.
//
// Returns an InvalidConfigError naming every option that failed, so the
// blocked status message tells the operator exactly what to fix.
func NewCharmConfig(ctx context.Context, config map[string]string, fileMax FileMaxFunc, logger *slog.Logger) (CharmConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw := config[GlobalMaxConnOption]
	maxConn, err := strconv.Atoi(raw)
	if err != nil || maxConn <= 0 {
		return CharmConfig{}, &InvalidConfigError{Fields: []string{GlobalMaxConnOption}}
	}

	if fileMax != nil {
		ceiling, err := fileMax(ctx)
		if err != nil {
			logger.Warn("cannot get system's max file descriptor value, skipping check", "error", err)
			return CharmConfig{GlobalMaxConnection: maxConn}, nil
		}
		if maxConn > ceiling {
			return CharmConfig{}, &InvalidConfigError{Fields: []string{GlobalMaxConnOption}}
		}
	}

	return CharmConfig{GlobalMaxConnection: maxConn}, nil
}
