// Package server exposes an entity.Provider over HTTP so remote browsers and
// label resolvers can share one store.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/query"
	"github.com/colonyops/kennel/internal/data/remote"
	"github.com/colonyops/kennel/internal/metrics"
)

// Options configures a Server.
type Options struct {
	// Profiling mounts net/http/pprof under /debug.
	Profiling bool
	// RequestTimeout bounds every API request. Zero uses 30s.
	RequestTimeout time.Duration
}

// Server serves the provider API, address parsing, metrics and health.
type Server struct {
	provider    entity.Provider
	collections []config.Collection
	syncs       map[string]*query.Synchronizer
	registry    *prometheus.Registry
	log         zerolog.Logger
	opts        Options

	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
}

// New wires the HTTP routes. resolver backs the address parse endpoint.
func New(provider entity.Provider, collections []config.Collection, resolver query.LabelResolver, log zerolog.Logger, opts Options) (*Server, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	s := &Server{
		provider:    provider,
		collections: collections,
		syncs:       make(map[string]*query.Synchronizer, len(collections)),
		registry:    reg,
		log:         log,
		opts:        opts,
	}
	for _, c := range collections {
		s.syncs[c.ID] = c.Synchronizer(resolver, log)
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	if s.opts.Profiling {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Use(instrument)

		r.Get(remote.PathCollections, s.handleCollections)
		r.Route(remote.PathCollections+"/{collection}", func(r chi.Router) {
			r.Use(s.requireCollection)
			r.Get("/entities", s.handlePage)
			r.Get("/entities/{id}", s.handleEntity)
			r.Get("/query", s.handleQuery)
		})
		r.Get(remote.PathDictionary+"/{table}/lookup", s.handleLookup)
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound, or with the first serve error.
func (s *Server) Start(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info().Str("addr", listener.Addr().String()).Msg("starting server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
