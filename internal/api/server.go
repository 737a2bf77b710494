// Package api implements the control plane's own status/health HTTP
// surface: an operator- and monitoring-facing view of the fleet the
// Event Processor is driving, entirely separate from the management
// server connection (spec.md §1 — no wire protocol mediation here, just
// read-only introspection of the core's own state).
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StatusProvider reports the control plane's own status together with the
// fleet of sub-agents it currently manages.
type StatusProvider interface {
	Status() map[string]any
}

// AgentDetailProvider is an optional capability of a StatusProvider: a
// fleet large enough to need the status API also wants to look up one
// sub-agent by AgentID without paging through the full listing every
// poll. Implemented by ProcessorStatus; checked with a type assertion so
// a StatusProvider that doesn't support it just isn't routed to.
type AgentDetailProvider interface {
	AgentStatus(id string) (map[string]any, bool)
}

// HealthResultsProvider reports the last-known health of the control
// plane itself and every sub-agent it has heard a health event from.
type HealthResultsProvider interface {
	Results() map[string]any
}

// MetricsProvider is an interface that renders metrics in text format.
type MetricsProvider interface {
	MetricsText() string
}

// Server is a lightweight HTTP API that exposes the control plane's
// fleet status and health check results to operators and monitoring
// systems, kept entirely separate from the OpAMP management connection.
type Server struct {
	addr    string
	logger  *slog.Logger
	status  StatusProvider
	health  HealthResultsProvider
	metrics MetricsProvider
	httpSrv *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, logger *slog.Logger, status StatusProvider, health HealthResultsProvider, metrics MetricsProvider) *Server {
	return &Server{
		addr:    addr,
		logger:  logger,
		status:  status,
		health:  health,
		metrics: metrics,
	}
}

// Start starts the HTTP server in a goroutine. Call Stop() to shut it down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /agents/{id}", s.handleAgentDetail)
	if s.metrics != nil {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.addr)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("stopping API server")
	return s.httpSrv.Shutdown(ctx)
}

// handleStatus returns the control plane's own status plus every
// sub-agent it currently manages.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.status.Status()

	// Merge health check results into the status if available.
	if s.health != nil {
		status["health_checks"] = s.health.Results()
	}

	s.writeJSON(w, http.StatusOK, status)
}

// handleHealth returns just the health check results for every sub-agent
// the Health Reporter has heard from, plus the control plane's own.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"checks": map[string]any{}})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"checks": s.health.Results(),
	})
}

// handleHealthz is a simple liveness probe for the control plane process
// itself — distinct from the fleet health handleHealth reports.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAgentDetail looks up a single managed sub-agent by AgentID,
// avoiding the need to page through the full fleet listing on every poll
// of a large fleet. 404s when the StatusProvider doesn't support detail
// lookups or the ID isn't currently managed.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	detail, ok := s.status.(AgentDetailProvider)
	if !ok {
		http.NotFound(w, r)
		return
	}
	entry, ok := detail.AgentStatus(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// handleMetrics returns Prometheus/OpenMetrics text exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if _, err := w.Write([]byte(s.metrics.MetricsText())); err != nil {
		s.logger.Error("failed to write metrics response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}
