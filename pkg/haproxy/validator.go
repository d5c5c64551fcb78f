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
	"os/exec"
	"strings"
	"time"

	parser "github.com/haproxytech/client-native/v6/config-parser"
)

// validateTimeout bounds the semantic check so a hung haproxy process
// cannot stall reconciliation.
const validateTimeout = 30 * time.Second

// ConfigValidator checks a rendered configuration before it replaces the
// running one.
type ConfigValidator interface {
	Validate(ctx context.Context, config string, configPath string) error
}

// TwoPhaseValidator validates in two phases: syntax with the client-native
// configuration parser, then semantics with the haproxy binary itself.
//
// The syntax phase catches malformed configurations without touching the
// system. The semantic phase catches what only the real binary knows about,
// like missing certificate files or conflicting directives, and requires
// the configuration to already be on disk.
type TwoPhaseValidator struct {
	// Binary is the haproxy executable, found on PATH when empty.
	Binary string
}

// Validate implements ConfigValidator.
func (v *TwoPhaseValidator) Validate(ctx context.Context, config string, configPath string) error {
	if err := v.validateSyntax(config); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if err := v.validateSemantics(ctx, configPath); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return nil
}

func (v *TwoPhaseValidator) validateSyntax(config string) error {
	p, err := parser.New()
	if err != nil {
		return fmt.Errorf("creating config parser: %w", err)
	}
	if err := p.Process(strings.NewReader(config)); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	return nil
}

func (v *TwoPhaseValidator) validateSemantics(ctx context.Context, configPath string) error {
	binary := v.Binary
	if binary == "" {
		found, err := exec.LookPath("haproxy")
		if err != nil {
			return fmt.Errorf("haproxy binary not found: %w", err)
		}
		binary = found
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "-c", "-f", configPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("haproxy -c: %s", parseAlerts(string(output)))
	}
	return nil
}

// parseAlerts extracts the [ALERT] lines from haproxy's check output,
// dropping the summary lines, so the status message carries the actual
// problem.
func parseAlerts(output string) string {
	var alerts []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "fatal errors found in configuration") ||
			strings.Contains(line, "error(s) found in configuration file") {
			continue
		}
		if strings.HasPrefix(line, "[ALERT]") {
			msg := strings.TrimSpace(strings.TrimPrefix(line, "[ALERT]"))
			if idx := strings.LastIndex(msg, ":"); idx >= 0 {
				msg = strings.TrimSpace(msg[idx+1:])
			}
			if msg != "" {
				alerts = append(alerts, msg)
			}
		}
	}
	if len(alerts) == 0 {
		return strings.TrimSpace(output)
	}
	return strings.Join(alerts, "; ")
}
