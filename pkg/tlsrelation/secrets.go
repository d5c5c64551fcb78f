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

package tlsrelation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretStore persists small key/value secrets under a label. Private keys
// and their passwords live here rather than in relation data.
type SecretStore interface {
	// Get returns the content stored under label, or ErrSecretNotFound.
	Get(label string) (map[string]string, error)

	// Set stores content under label, replacing any previous revision.
	Set(label string, content map[string]string) error

	// Delete removes every revision of the secret under label. Deleting a
	// label that does not exist returns ErrSecretNotFound.
	Delete(label string) error
}

// FileSecretStore keeps secrets as JSON files in a directory readable only
// by the owning user.
type FileSecretStore struct {
	Dir string
}

// NewFileSecretStore creates the backing directory if needed.
func NewFileSecretStore(dir string) (*FileSecretStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating secret directory: %w", err)
	}
	return &FileSecretStore{Dir: dir}, nil
}

func (s *FileSecretStore) path(label string) string {
	// Labels are dotted identifiers; keep them filesystem-safe.
	return filepath.Join(s.Dir, strings.ReplaceAll(label, string(os.PathSeparator), "_")+".json")
}

func (s *FileSecretStore) Get(label string) (map[string]string, error) {
	raw, err := os.ReadFile(s.path(label))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", label, err)
	}
	content := map[string]string{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("decoding secret %s: %w", label, err)
	}
	return content, nil
}

func (s *FileSecretStore) Set(label string, content map[string]string) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encoding secret %s: %w", label, err)
	}
	if err := os.WriteFile(s.path(label), raw, 0o600); err != nil {
		return fmt.Errorf("writing secret %s: %w", label, err)
	}
	return nil
}

func (s *FileSecretStore) Delete(label string) error {
	err := os.Remove(s.path(label))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, label)
	}
	if err != nil {
		return fmt.Errorf("deleting secret %s: %w", label, err)
	}
	return nil
}
