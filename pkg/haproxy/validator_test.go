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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSyntax(t *testing.T) {
	validator := &TwoPhaseValidator{}

	valid := `
global
    daemon

defaults
    mode http

backend web
    balance roundrobin
    server srv1 192.168.1.10:80
`
	assert.NoError(t, validator.validateSyntax(valid))
}

func TestParseAlerts(t *testing.T) {
	output := `[NOTICE]   (1) : haproxy version is 2.8.5
[ALERT]    (1) : config : parsing [/etc/haproxy/haproxy.cfg:12] : unknown keyword 'bogus'
[ALERT]    (1) : config : 1 error(s) found in configuration file : /etc/haproxy/haproxy.cfg
Fatal errors found in configuration.`

	parsed := parseAlerts(output)
	assert.Contains(t, parsed, "unknown keyword 'bogus'")
	assert.NotContains(t, parsed, "error(s) found in configuration file")
}

func TestParseAlertsFallsBackToRawOutput(t *testing.T) {
	assert.Equal(t, "something went wrong", parseAlerts("something went wrong\n"))
}
