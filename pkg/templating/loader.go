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
	"fmt"
	"io"
	"strings"

	"github.com/nikolalohinski/gonja/v2/loaders"
)

// memoryLoader serves templates from a flat in-memory namespace so
// {% include "name" %} works without filesystem-style path prefixes.
type memoryLoader struct {
	templates map[string]string
}

func newMemoryLoader(templates map[string]string) loaders.Loader {
	return &memoryLoader{templates: templates}
}

func (l *memoryLoader) Read(path string) (io.Reader, error) {
	content, ok := l.templates[path]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", path)
	}
	return strings.NewReader(content), nil
}

func (l *memoryLoader) Resolve(path string) (string, error) {
	if _, ok := l.templates[path]; !ok {
		return "", fmt.Errorf("template not found: %s", path)
	}
	return path, nil
}

// Inherit returns the loader unchanged; the namespace is flat so there is
// no path context to carry.
func (l *memoryLoader) Inherit(string) (loaders.Loader, error) {
	return l, nil
}
