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

package templating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRender(t *testing.T) {
	engine, err := New(map[string]string{
		"greeting": "Hello {{ name }}!",
	})
	require.NoError(t, err)

	output, err := engine.Render("greeting", map[string]any{"name": "haproxy"})
	require.NoError(t, err)
	assert.Equal(t, "Hello haproxy!", output)
}

func TestEngineRenderLoop(t *testing.T) {
	template := `backend servers
{% for server in servers %}
    server {{ server.name }} {{ server.address }}:{{ server.port }}
{% endfor %}`

	engine, err := New(map[string]string{"backend": template})
	require.NoError(t, err)

	output, err := engine.Render("backend", map[string]any{
		"servers": []map[string]any{
			{"name": "s0", "address": "10.0.0.1", "port": 8080},
			{"name": "s1", "address": "10.0.0.2", "port": 8080},
		},
	})
	require.NoError(t, err)
	// TrimBlocks and LeftStripBlocks keep the for loop from introducing
	// blank lines.
	assert.Equal(t, "backend servers\n"+
		"    server s0 10.0.0.1:8080\n"+
		"    server s1 10.0.0.2:8080\n", output)
}

func TestEngineRenderInclude(t *testing.T) {
	engine, err := New(map[string]string{
		"main":    `{% include "partial" %}`,
		"partial": "included content",
	})
	require.NoError(t, err)

	output, err := engine.Render("main", nil)
	require.NoError(t, err)
	assert.Equal(t, "included content", output)
}

func TestEngineCompilationError(t *testing.T) {
	_, err := New(map[string]string{
		"broken": "{% if unclosed",
	})
	var compilation *CompilationError
	require.ErrorAs(t, err, &compilation)
	assert.Equal(t, "broken", compilation.TemplateName)
}

func TestEngineTemplateNotFound(t *testing.T) {
	engine, err := New(map[string]string{"known": "content"})
	require.NoError(t, err)

	_, err = engine.Render("unknown", nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "unknown", notFound.TemplateName)
}
