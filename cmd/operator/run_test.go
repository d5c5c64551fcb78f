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

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dimaqq/haproxy-operator/pkg/relation"
)

func setRunFlags(t *testing.T) {
	t.Helper()
	snap := relation.NewSnapshot("haproxy/0", "10.10.0.1")
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	runSnapshotPath = filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(runSnapshotPath, raw, 0o600))
	runSecretsDir = filepath.Join(t.TempDir(), "secrets")
	runMetricsAddr = "127.0.0.1:0"
	runConfigDir = t.TempDir()
	runCertsDir = t.TempDir()
}

func TestRunReturnsOnStdinEOF(t *testing.T) {
	setRunFlags(t)

	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), strings.NewReader(""))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after stdin EOF")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	setRunFlags(t)

	// A pipe that never delivers a line, like an idle terminal.
	input, _ := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, input)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
