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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListenStanza(t *testing.T) {
	port := 80
	service := &Service{
		Name:           "web",
		Host:           "0.0.0.0",
		Port:           &port,
		ServiceOptions: optionList{"mode http", "balance leastconn", "maxconn 200"},
		Servers: []ServerEntry{
			{Name: "web-0", Address: "10.0.0.20", Port: "8080", Options: []string{"cookie S{i}", "check"}},
			{Name: "web-1", Address: "10.0.0.21", Port: "8080", Options: []string{"cookie S{i}", "check"}},
		},
	}

	renderer := &Renderer{LibDir: t.TempDir()}
	stanza := renderer.createListenStanza(service)

	assert.Equal(t, "frontend haproxy-80\n"+
		"    bind 0.0.0.0:80\n"+
		"    default_backend web\n"+
		"    mode http\n"+
		"    maxconn 200\n"+
		"\n"+
		"backend web\n"+
		"    mode http\n"+
		"    balance leastconn\n"+
		"    server web-0 10.0.0.20:8080 cookie S0 check\n"+
		"    server web-1 10.0.0.21:8080 cookie S1 check", stanza)
}

func TestCreateListenStanzaIncomplete(t *testing.T) {
	renderer := &Renderer{LibDir: t.TempDir()}
	assert.Empty(t, renderer.createListenStanza(&Service{Name: "web"}))
}

func TestCreateListenStanzaExtraBackends(t *testing.T) {
	port := 80
	service := &Service{
		Name: "web",
		Host: "0.0.0.0",
		Port: &port,
		Servers: []ServerEntry{
			{Name: "web-0", Address: "10.0.0.20", Port: "8080"},
		},
		Backends: []Backend{
			{Name: "web-cache", Servers: []ServerEntry{
				{Name: "cache-0", Address: "10.0.0.30", Port: "8081"},
			}},
		},
	}

	renderer := &Renderer{LibDir: t.TempDir()}
	stanza := renderer.createListenStanza(service)
	assert.Contains(t, stanza, "backend web\n    server web-0 10.0.0.20:8080")
	assert.Contains(t, stanza, "backend web-cache\n    server cache-0 10.0.0.30:8081")
}

func TestPartitionOptions(t *testing.T) {
	fe, be := partitionOptions([]string{
		"mode tcp",
		"balance leastconn",
		"acl internal src 10.0.0.0/8",
		"timeout client 30s",
	})

	assert.Equal(t, []string{
		"mode tcp",
		"acl internal src 10.0.0.0/8",
		"timeout client 30s",
	}, fe)
	assert.Equal(t, []string{"mode tcp", "balance leastconn"}, be)
}

func TestGenerateServiceConfigWritesErrorfiles(t *testing.T) {
	dir := t.TempDir()
	port := 80
	content := base64.StdEncoding.EncodeToString([]byte("<html>down</html>"))
	service := &Service{
		Name:       "web",
		Host:       "0.0.0.0",
		Port:       &port,
		Errorfiles: []Errorfile{{HTTPStatus: 503, Content: content}},
		Servers:    []ServerEntry{{Name: "web-0", Address: "10.0.0.20", Port: "8080"}},
	}

	renderer := &Renderer{LibDir: dir}
	stanzas, err := renderer.GenerateServiceConfig([]*Service{service})
	require.NoError(t, err)
	require.Len(t, stanzas, 1)

	path := filepath.Join(dir, "service_web", "503.http")
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>down</html>", string(written))
	assert.Contains(t, stanzas[0], "errorfile 503 "+path)
}

func TestGenerateServiceConfigWritesCertificates(t *testing.T) {
	dir := t.TempDir()
	port := 443
	pem := base64.StdEncoding.EncodeToString([]byte("PEMDATA"))
	service := &Service{
		Name:    "secure",
		Host:    "0.0.0.0",
		Port:    &port,
		Crts:    []string{"DEFAULT", pem},
		Servers: []ServerEntry{{Name: "secure-0", Address: "10.0.0.20", Port: "8443"}},
	}

	renderer := &Renderer{LibDir: dir}
	stanzas, err := renderer.GenerateServiceConfig([]*Service{service})
	require.NoError(t, err)
	require.Len(t, stanzas, 1)

	assert.Contains(t, stanzas[0],
		"bind 0.0.0.0:443 ssl crt "+filepath.Join(dir, "default.pem")+" no-sslv3"+
			" crt "+filepath.Join(dir, "service_secure", "1.pem")+" no-sslv3")

	written, err := os.ReadFile(filepath.Join(dir, "service_secure", "1.pem"))
	require.NoError(t, err)
	assert.Equal(t, "PEMDATA", string(written))
}
