package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/engine"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/storage"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/trend"
)

// Server exposes the engine's read operations and the manual check-now
// endpoint to dashboards.
type Server struct {
	engine *engine.Engine
	store  storage.AlertStore
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates an API server.
func NewServer(e *engine.Engine, store storage.AlertStore, logger *slog.Logger) *Server {
	s := &Server{
		engine: e,
		store:  store,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/v1/trends", s.handleTrends)
	s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/v1/evaluate", s.handleEvaluate)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type summaryResponse struct {
	View     model.CombinedView     `json:"view"`
	Failures []model.PartialFailure `json:"failures,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	scope, err := parseScopeParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, failures := s.engine.GetCombinedSummary(ctx, scope)
	writeJSON(w, summaryResponse{View: view, Failures: failures})
}

type trendsResponse struct {
	Series   []model.TrendPoint     `json:"series"`
	Stats    trend.Stats            `json:"stats"`
	Failures []model.PartialFailure `json:"failures,omitempty"`
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	scope, err := parseScopeParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	start := model.Day(now.AddDate(0, 0, -30))
	end := model.Day(now).AddDate(0, 0, 1)
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "invalid start date", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "invalid end date", http.StatusBadRequest)
			return
		}
	}
	if !start.Before(end) {
		http.Error(w, "start must be before end", http.StatusBadRequest)
		return
	}

	series, stats, failures := s.engine.GetTrendStats(ctx, scope, start, end)
	writeJSON(w, trendsResponse{Series: series, Stats: stats, Failures: failures})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	entries, err := s.store.ListHistory(ctx, r.URL.Query().Get("rule_id"), 100)
	if err != nil {
		s.logger.Error("list history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RunEvaluationPass(r.Context())
	if errors.Is(err, engine.ErrPassInProgress) {
		http.Error(w, "evaluation pass already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		s.logger.Error("manual evaluation pass", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func parseScopeParam(r *http.Request) (model.ProviderScope, error) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return model.ScopeAll, nil
	}
	return model.ParseScope(raw)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
