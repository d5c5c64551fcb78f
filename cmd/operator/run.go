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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dimaqq/haproxy-operator/pkg/events"
	"github.com/dimaqq/haproxy-operator/pkg/ha"
	"github.com/dimaqq/haproxy-operator/pkg/haproxy"
	"github.com/dimaqq/haproxy-operator/pkg/metrics"
	"github.com/dimaqq/haproxy-operator/pkg/operator"
	"github.com/dimaqq/haproxy-operator/pkg/relation"
	"github.com/dimaqq/haproxy-operator/pkg/tlsrelation"
)

var (
	runSnapshotPath string
	runSecretsDir   string
	runMetricsAddr  string
	runConfigDir    string
	runCertsDir     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation loop",
	Long: `Run the reconciliation loop.

The model snapshot file carries this unit's configuration and integration
databags. Events arrive as JSON lines on stdin, for example:

  {"kind": "install"}
  {"kind": "config-changed"}
  {"kind": "relation-changed", "endpoint": "ingress", "relation_id": 3}
  {"kind": "certificate-available"}

The loop stops on stdin EOF, SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, os.Stdin)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSnapshotPath, "snapshot", "/var/lib/haproxy-operator/model.json",
		"Path to the model snapshot file")
	runCmd.Flags().StringVar(&runSecretsDir, "secrets-dir", "/var/lib/haproxy-operator/secrets",
		"Directory holding private-key secrets")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", ":9123",
		"Listen address of the Prometheus metrics endpoint")
	runCmd.Flags().StringVar(&runConfigDir, "config-dir", haproxy.DefaultConfigDir,
		"Directory the haproxy configuration is written to")
	runCmd.Flags().StringVar(&runCertsDir, "certs-dir", haproxy.DefaultCertsDir,
		"Directory certificate bundles are written to")
}

func run(ctx context.Context, input io.Reader) error {
	model, err := relation.LoadSnapshot(runSnapshotPath)
	if err != nil {
		return fmt.Errorf("loading model snapshot: %w", err)
	}
	slog.Info("model snapshot loaded",
		"unit", model.UnitName(), "app", model.AppName(), "path", runSnapshotPath)

	service, err := haproxy.NewService()
	if err != nil {
		return err
	}
	service.ConfigDir = runConfigDir
	service.CertsDir = runCertsDir

	secrets, err := tlsrelation.NewFileSecretStore(runSecretsDir)
	if err != nil {
		return err
	}
	certs := tlsrelation.NewStore(model, secrets)
	certs.CertsDir = runCertsDir
	certs.Logger = slog.Default().With("component", "tlsrelation", "unit", model.UnitName())

	coordinator := ha.NewCoordinator(model, ha.NewRelationCluster(model), haproxy.ServiceName)
	coordinator.Logger = slog.Default().With("component", "ha", "unit", model.UnitName())

	queue := events.NewQueue()
	op := operator.New(model, service, certs, coordinator, queue)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The reader is not part of the group: on a signal it stays blocked in
	// Scan until the process exits, and waiting on it would wedge shutdown.
	// Closing the queue on EOF is what drains and stops the loop.
	readErr := make(chan error, 1)
	go func() {
		defer queue.Close()
		readErr <- readEvents(ctx, input, queue)
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return metrics.NewServer(runMetricsAddr, op.Metrics).Start(groupCtx)
	})
	group.Go(func() error {
		// Unblocks the metrics server once the loop is done, whether the
		// queue was closed by EOF or by cancellation.
		defer cancel()
		return op.Run(groupCtx)
	})

	err = group.Wait()
	select {
	case rerr := <-readErr:
		if err == nil {
			err = rerr
		}
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// eventLine is one JSON line on stdin.
type eventLine struct {
	Kind        string `json:"kind"`
	Endpoint    string `json:"endpoint"`
	RelationID  int    `json:"relation_id"`
	Certificate string `json:"certificate"`
}

func readEvents(ctx context.Context, input io.Reader, queue *events.Queue) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event, err := parseEvent(line)
		if err != nil {
			slog.Warn("skipping malformed event", "error", err)
			continue
		}
		queue.Push(event)
	}
	return scanner.Err()
}

func parseEvent(line []byte) (events.Event, error) {
	var e eventLine
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, err
	}
	switch e.Kind {
	case "install":
		return events.NewInstallEvent(), nil
	case "config-changed":
		return events.NewConfigChangedEvent(), nil
	case "relation-changed":
		return events.NewRelationChangedEvent(e.Endpoint, e.RelationID), nil
	case "relation-broken":
		return events.NewRelationBrokenEvent(e.Endpoint, e.RelationID), nil
	case "certificate-available":
		return events.NewCertificateAvailableEvent(), nil
	case "certificate-expiring":
		return events.NewCertificateExpiringEvent(e.Certificate), nil
	case "certificate-invalidated":
		return events.NewCertificateInvalidatedEvent(e.Certificate), nil
	case "all-certificates-invalidated":
		return events.NewAllCertificatesInvalidatedEvent(), nil
	}
	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}
