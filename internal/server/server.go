// Package server exposes the coach over HTTP: a streaming /invocations
// endpoint plus health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthmate/coachai/internal/config"
	"github.com/healthmate/coachai/internal/memory"
	"github.com/healthmate/coachai/internal/observability"
	"github.com/healthmate/coachai/internal/stream"
)

// Responder produces the coach's answer for one request, streaming events
// into the queue. agent.Coach implements it.
type Responder interface {
	Respond(ctx context.Context, scope memory.Scope, system, prompt string, q *stream.Queue) (string, error)
}

// Server is the HTTP front of the coach service.
type Server struct {
	cfg     *config.Config
	coach   Responder
	muxer   *stream.Multiplexer
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New wires the server. metrics and tracer may be nil-free no-ops from
// observability; coach must be set.
func New(cfg *config.Config, coach Responder, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		coach:   coach,
		muxer:   stream.NewMultiplexer(logger),
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.With("component", "server"),
	}
}

// Handler builds the full route tree with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("POST /invocations", s.handleInvocations)
	return corsMiddleware(mux)
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", addr)
	return nil
}

// Stop shuts the server down, waiting for in-flight streams up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// corsMiddleware allows browser clients to reach the service.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
