// Package api provides the HTTP surface of Practica: the inbound event
// endpoint that outer transports (bot adapters, test harnesses) post
// user messages to, plus health and metrics endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/practica-ai/practica/internal/dialogue"
	"github.com/practica-ai/practica/internal/metrics"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server exposes the event-processing engine over HTTP.
type Server struct {
	engine *dialogue.Engine
	server *http.Server
}

// NewServer creates an API server around a dialogue engine.
func NewServer(engine *dialogue.Engine, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{engine: engine}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", s.eventsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	s.server = &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server in a goroutine and reports listen failures on
// the returned channel.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("API server failed: %w", err)
		}
		close(errc)
	}()
	return errc
}

// Shutdown stops accepting new requests and waits for in-flight ones
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.server.Shutdown(ctx)
}
