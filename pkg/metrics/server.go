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

package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server serves the registry's metrics over HTTP on /metrics and shuts
// down gracefully when its context is cancelled.
type Server struct {
	addr   string
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server for the given metric set.
func NewServer(addr string, metrics *Metrics) *Server {
	s := &Server{
		addr:   addr,
		logger: slog.Default().With("component", "metrics-server"),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start runs the server until ctx is cancelled, then performs a graceful
// shutdown bounded by a 10 second timeout. Typically run in a goroutine or
// errgroup.
func (s *Server) Start(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("starting metrics server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		s.logger.Info("metrics server stopped")
		return nil
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}
