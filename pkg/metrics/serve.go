/*
 * SPDX-License-Identifier: Apache-2.0
 */

package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/containerd/containerd/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOpt configures a Server at construction.
type ServerOpt func(*Server) error

// Server exposes Collectors over HTTP in the Prometheus text exposition
// format. cmd/bootwarmd does not start one, in --daemon mode or
// otherwise, and --dump prints a pack file's contents, not these
// counters.
type Server struct {
	address    string
	registry   *prometheus.Registry
	collectors *Collectors
	httpServer *http.Server
}

// WithAddress sets the listen address (e.g. "127.0.0.1:9469").
func WithAddress(address string) ServerOpt {
	return func(s *Server) error {
		if address == "" {
			return errors.New("metrics server address is required")
		}
		s.address = address
		return nil
	}
}

// WithCollectors attaches the Collectors set to serve; required.
func WithCollectors(c *Collectors) ServerOpt {
	return func(s *Server) error {
		s.collectors = c
		return nil
	}
}

// NewServer builds a Server from opts, registering its collectors with
// a fresh registry.
func NewServer(opts ...ServerOpt) (*Server, error) {
	var s Server
	for _, o := range opts {
		if err := o(&s); err != nil {
			return nil, err
		}
	}
	if s.collectors == nil {
		return nil, errors.New("metrics server requires collectors")
	}
	if s.address == "" {
		return nil, errors.New("metrics server address is required")
	}

	s.registry = prometheus.NewRegistry()
	s.collectors.MustRegister(s.registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.httpServer = &http.Server{Addr: s.address, Handler: mux}
	return &s, nil
}

// Serve blocks serving /metrics until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.L.WithError(err).Warn("metrics server did not shut down cleanly")
		}
		return nil
	case err := <-errc:
		return err
	}
}
