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

// Package webhook receives GitHub webhook deliveries and evaluates the
// matching GitHub-triggered Areas synchronously.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/telemetry"
	"github.com/tombee/areas/internal/trigger"
)

// Path is where GitHub deliveries are accepted.
const Path = "/webhooks/github"

// DefaultMaxBodyBytes bounds a delivery when no limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// AreaLister finds the Areas bound to a GitHub action.
type AreaLister interface {
	ListActiveAreasByAction(ctx context.Context, actionName string) ([]*store.Area, error)
}

// Runner evaluates and, when matched, fires one Area.
type Runner interface {
	Run(ctx context.Context, ev trigger.Evaluator, area *store.Area, now time.Time) (bool, error)
}

// Config contains GitHubHandler dependencies.
type Config struct {
	Areas    AreaLister
	Runner   Runner
	Triggers []*trigger.GitHubTrigger

	// Secret enables X-Hub-Signature-256 verification when non-empty.
	Secret string

	// MaxBodyBytes limits the request body. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Now defaults to time.Now.
	Now func() time.Time

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// GitHubHandler handles GitHub webhooks.
type GitHubHandler struct {
	areas    AreaLister
	runner   Runner
	triggers map[string][]*trigger.GitHubTrigger
	secret   string
	maxBody  int64
	now      func() time.Time
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewGitHubHandler creates a GitHubHandler.
func NewGitHubHandler(cfg Config) *GitHubHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &GitHubHandler{
		areas:    cfg.Areas,
		runner:   cfg.Runner,
		triggers: make(map[string][]*trigger.GitHubTrigger),
		secret:   cfg.Secret,
		maxBody:  cfg.MaxBodyBytes,
		now:      cfg.Now,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With(slog.String("component", "webhook")),
	}
	for _, t := range cfg.Triggers {
		h.triggers[t.Event()] = append(h.triggers[t.Event()], t)
	}
	return h
}

// RegisterRoutes registers the GitHub endpoint on mux.
func (h *GitHubHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST "+Path, h)
}

// ServeHTTP handles one delivery.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		h.metrics.RecordWebhook(r.Context(), "unknown", "bad_request")
		writeError(w, http.StatusBadRequest, "missing X-GitHub-Event header")
		return
	}
	logger := h.logger.With(
		slog.String("event", event),
		slog.String("delivery", r.Header.Get("X-GitHub-Delivery")))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.RecordWebhook(r.Context(), event, "too_large")
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.metrics.RecordWebhook(r.Context(), event, "bad_request")
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if h.secret != "" {
		if err := Verify(r.Header, body, h.secret); err != nil {
			logger.Warn("webhook signature verification failed", slog.Any("error", err))
			h.metrics.RecordWebhook(r.Context(), event, "unauthorized")
			writeError(w, http.StatusUnauthorized, "signature verification failed")
			return
		}
	}

	if event == trigger.GitHubEventPing {
		h.metrics.RecordWebhook(r.Context(), event, "pong")
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	triggers := h.triggers[event]
	if len(triggers) == 0 {
		h.metrics.RecordWebhook(r.Context(), event, "ignored")
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Event %s not handled", event)})
		return
	}

	ev, err := trigger.ParseGitHubEvent(event, body)
	if err != nil {
		h.metrics.RecordWebhook(r.Context(), event, "bad_request")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	// Reactions run to completion even if GitHub hangs up.
	ctx := context.WithoutCancel(r.Context())
	fired, errs := h.dispatch(ctx, logger, triggers, ev)

	h.metrics.RecordWebhook(ctx, event, "processed")
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    fmt.Sprintf("Event %s processed", event),
		"repository": ev.Repository.FullName,
		"triggered":  fired,
		"errors":     errs,
	})
}

// dispatch evaluates every Area bound to the event's triggers.
func (h *GitHubHandler) dispatch(ctx context.Context, logger *slog.Logger, triggers []*trigger.GitHubTrigger, ev *trigger.GitHubEvent) (fired, errs int) {
	now := h.now()
	for _, t := range triggers {
		areas, err := h.areas.ListActiveAreasByAction(ctx, t.Name())
		if err != nil {
			logger.Error("list areas failed", slog.String("trigger", t.Name()), slog.Any("error", err))
			errs++
			continue
		}
		bound := t.Bind(ev)
		for _, area := range areas {
			ok, err := h.runner.Run(ctx, bound, area, now)
			if err != nil {
				errs++
				h.metrics.RecordAreaError(ctx, t.Name())
				logger.Error("area evaluation failed",
					slog.String("trigger", t.Name()),
					slog.String("area_id", area.ID),
					slog.Any("error", err))
				continue
			}
			if ok {
				fired++
			}
		}
	}
	if fired > 0 {
		logger.Info("webhook fired areas",
			slog.String("repository", ev.Repository.FullName),
			slog.Int("count", fired))
	}
	return fired, errs
}

// Verify checks the X-Hub-Signature-256 header against the body.
func Verify(header http.Header, body []byte, secret string) error {
	signature := header.Get("X-Hub-Signature-256")
	if signature == "" {
		if header.Get("X-Hub-Signature") != "" {
			return fmt.Errorf("SHA-1 signatures not supported, please use SHA-256")
		}
		return fmt.Errorf("missing signature header")
	}

	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return fmt.Errorf("invalid signature format")
	}

	if !hmac.Equal([]byte(hexSig), []byte(Sign(body, secret)[len("sha256="):])) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
