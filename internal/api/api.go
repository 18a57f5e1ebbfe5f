// Copyright 2025 Tom Barlow
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

// Package api serves the operational HTTP API: health, metrics, execution
// ledger reads and cancellation, and Hook State introspection.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/log"
	"github.com/tombee/areas/internal/scheduler"
	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SchedulerStatus reports per-cadence scheduler state.
type SchedulerStatus interface {
	Status() []scheduler.CadenceStatus
}

// Config configures the API server.
type Config struct {
	Ledger     *ledger.Ledger
	HookStates *hookstate.Store

	// Scheduler is optional; /api/v1/scheduler is only served when set.
	Scheduler SchedulerStatus

	// Metrics is optional; /metrics is only served when set.
	Metrics http.Handler

	// LongRunningThreshold is the default for /executions/long-running.
	LongRunningThreshold time.Duration

	Version string
	Now     func() time.Time
	Logger  *slog.Logger
}

// Server routes operational API requests.
type Server struct {
	ledger     *ledger.Ledger
	hookStates *hookstate.Store
	scheduler  SchedulerStatus
	metrics    http.Handler
	threshold  time.Duration
	version    string
	started    time.Time
	now        func() time.Time
	logger     *slog.Logger
}

// New creates an API server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LongRunningThreshold <= 0 {
		cfg.LongRunningThreshold = 10 * time.Minute
	}
	return &Server{
		ledger:     cfg.Ledger,
		hookStates: cfg.HookStates,
		scheduler:  cfg.Scheduler,
		metrics:    cfg.Metrics,
		threshold:  cfg.LongRunningThreshold,
		version:    cfg.Version,
		started:    cfg.Now(),
		now:        cfg.Now,
		logger:     cfg.Logger.With(slog.String("component", "api")),
	}
}

// RegisterRoutes registers the API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /api/v1/executions", s.handleListExecutions)
	mux.HandleFunc("GET /api/v1/executions/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/executions/long-running", s.handleLongRunning)
	mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGetExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/v1/areas/{id}/hook-states", s.handleHookStates)
	if s.scheduler != nil {
		mux.HandleFunc("GET /api/v1/scheduler", s.handleScheduler)
	}
}

// Handler returns a mux with every route registered, wrapped in request
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return log.HTTPMiddleware(s.logger)(mux)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Uptime:  s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleListExecutions handles GET /api/v1/executions?area_id=&status=&limit=.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var execs []*store.Execution
	switch {
	case q.Get("area_id") != "":
		execs, err = s.ledger.ListByArea(r.Context(), q.Get("area_id"), limit)
	case q.Get("status") != "":
		execs, err = s.ledger.ListByStatus(r.Context(), store.ExecutionStatus(q.Get("status")), limit)
	default:
		execs, err = s.ledger.Recent(r.Context(), limit)
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	// area_id takes precedence; status narrows it further.
	if status := q.Get("status"); status != "" && q.Get("area_id") != "" {
		filtered := execs[:0]
		for _, e := range execs {
			if string(e.Status) == status {
				filtered = append(filtered, e)
			}
		}
		execs = filtered
	}
	if execs == nil {
		execs = []*store.Execution{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.ledger.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	exec, err := s.ledger.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleStats handles GET /api/v1/executions/stats?area_id=.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context(), r.URL.Query().Get("area_id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleLongRunning handles GET /api/v1/executions/long-running?threshold=.
func (s *Server) handleLongRunning(w http.ResponseWriter, r *http.Request) {
	threshold := s.threshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeErr(w, r, &areaserrors.ValidationError{Field: "threshold", Message: "must be a positive duration"})
			return
		}
		threshold = d
	}

	execs, err := s.ledger.LongRunning(r.Context(), threshold)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if execs == nil {
		execs = []*store.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold":  threshold.String(),
		"executions": execs,
		"count":      len(execs),
	})
}

func (s *Server) handleHookStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.hookStates.ListByArea(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if states == nil {
		states = []*store.HookState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hook_states": states,
		"count":       len(states),
	})
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cadences": s.scheduler.Status()})
}

// writeErr maps typed errors to status codes. Anything untyped is a 500 and
// gets logged.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case areaserrors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case areaserrors.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case areaserrors.IsTransition(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("api request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &areaserrors.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
