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

import "log/slog"

// StatusKind is the unit's coarse health as reported to the platform.
type StatusKind string

const (
	// StatusActive means the proxy is converged and serving.
	StatusActive StatusKind = "active"
	// StatusBlocked means operator intervention is required, for example a
	// configuration error or conflicting integrations.
	StatusBlocked StatusKind = "blocked"
	// StatusWaiting means a precondition is not met yet and the work will
	// be retried, for example a certificate that has not been issued.
	StatusWaiting StatusKind = "waiting"
	// StatusMaintenance means a long-running operation is in progress.
	StatusMaintenance StatusKind = "maintenance"
	// StatusError means an unexpected failure; the event will be retried.
	StatusError StatusKind = "error"
)

// Status is a kind plus a human-readable message shown to the operator.
type Status struct {
	Kind    StatusKind
	Message string
}

// StatusReporter receives unit status transitions. The dispatch layer is
// the only caller; individual handlers never set status directly.
type StatusReporter interface {
	SetStatus(status Status)
}

// LogStatusReporter reports status transitions to the log. The default
// reporter when no platform integration is wired.
type LogStatusReporter struct {
	Logger *slog.Logger
}

func (r *LogStatusReporter) SetStatus(status Status) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("unit status", "kind", string(status.Kind), "message", status.Message)
}
