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
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrTooManyIntegrations is returned when more than one of the mutually
// exclusive proxying integrations is established. The message is surfaced
// verbatim as the unit's blocked status.
var ErrTooManyIntegrations = errors.New(
	"Only one integration out of 'ingress', 'ingress-per-unit', " +
		"'reverseproxy' or 'haproxy-route' can be active at a time.")

// ErrTLSNotReady is returned when the certificates integration or the
// external-hostname configuration is not complete enough to handle TLS.
// It is a precondition failure, not a hard error: callers usually defer.
var ErrTLSNotReady = errors.New("not ready to handle TLS")

// InvalidConfigError reports operator configuration values that failed
// validation. Blocked status; requires operator correction.
type InvalidConfigError struct {
	// Fields names the configuration options that failed.
	Fields []string
}

func (e *InvalidConfigError) Error() string {
	fields := append([]string(nil), e.Fields...)
	sort.Strings(fields)
	return "invalid configuration: " + strings.Join(fields, ",")
}

// InvalidDataError reports integration databag contents that failed schema
// or semantic validation. It is scoped to a single endpoint so one bad
// integration never halts the others.
type InvalidDataError struct {
	Endpoint string
	Err      error
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("validation of %s relation data failed: %v", e.Endpoint, e.Err)
}

func (e *InvalidDataError) Unwrap() error {
	return e.Err
}
