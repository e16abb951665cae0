// Package api exposes the observability HTTP surface of a harvest run.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

// SummaryProvider exposes the running summary of the active harvest.
// The orchestrator satisfies it.
type SummaryProvider interface {
	Snapshot() harvest.Summary
}

// Server serves health, metrics, and run-summary endpoints alongside the
// harvest so operators can watch a run without tailing logs.
type Server struct {
	router  chi.Router
	summary SummaryProvider
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The gatherer
// backs /metrics; pass the registry the progress sink registered into.
func NewServer(summary SummaryProvider, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{summary: summary, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/summary", s.getSummary)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSummary(w http.ResponseWriter, _ *http.Request) {
	if s.summary == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run active"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.summary.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response write failed", zap.Error(err))
	}
}
