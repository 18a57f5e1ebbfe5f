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

// Package ledger records Area executions and enforces their status
// lifecycle: PENDING -> RUNNING -> SUCCESS|FAILED|CANCELLED, or
// PENDING -> CANCELLED. Terminal executions never change again.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tombee/areas/internal/events"
	"github.com/tombee/areas/internal/secrets"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/telemetry"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Config contains Ledger dependencies.
type Config struct {
	Executions store.ExecutionStore

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Publisher receives one event per transition. Defaults to a no-op.
	Publisher events.Publisher

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	// Masker hides credential values in failure messages. May be nil.
	Masker *secrets.Masker

	Logger *slog.Logger
}

// Ledger is the execution lifecycle service.
type Ledger struct {
	execs     store.ExecutionStore
	now       func() time.Time
	publisher events.Publisher
	metrics   *telemetry.Metrics
	masker    *secrets.Masker
	logger    *slog.Logger
}

// Draft describes an execution to create.
type Draft struct {
	AreaID      string
	TriggerData map[string]any

	// StartedAt defaults to now.
	StartedAt time.Time
}

// New creates a Ledger.
func New(cfg Config) *Ledger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ledger{
		execs:     cfg.Executions,
		now:       cfg.Now,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		masker:    cfg.Masker,
		logger:    cfg.Logger.With(slog.String("component", "ledger")),
	}
}

// Create records a PENDING execution.
func (l *Ledger) Create(ctx context.Context, d Draft) (*store.Execution, error) {
	if d.AreaID == "" {
		return nil, &areaserrors.ValidationError{Field: "area_id", Message: "is required"}
	}
	now := l.now().UTC()
	started := d.StartedAt
	if started.IsZero() {
		started = now
	}
	trigger := d.TriggerData
	if trigger == nil {
		trigger = map[string]any{}
	}

	exec := &store.Execution{
		AreaID:      d.AreaID,
		Status:      store.StatusPending,
		TriggerData: trigger,
		StartedAt:   started.UTC(),
		CreatedAt:   now,
	}
	if err := l.execs.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	l.emit(ctx, exec, "")
	return exec, nil
}

// Start moves a PENDING execution to RUNNING.
func (l *Ledger) Start(ctx context.Context, id string) (*store.Execution, error) {
	return l.transition(ctx, id, store.StatusRunning, []store.ExecutionStatus{store.StatusPending}, nil)
}

// Complete marks a RUNNING execution SUCCESS and computes execution_time_ms.
func (l *Ledger) Complete(ctx context.Context, id string, result map[string]any) (*store.Execution, error) {
	return l.transition(ctx, id, store.StatusSuccess, []store.ExecutionStatus{store.StatusRunning}, func(e *store.Execution, now time.Time) {
		ms := now.Sub(e.StartedAt).Milliseconds()
		e.ExecutionResult = result
		e.ExecutionTimeMs = &ms
	})
}

// Fail marks a RUNNING execution FAILED with message.
func (l *Ledger) Fail(ctx context.Context, id, message string) (*store.Execution, error) {
	return l.transition(ctx, id, store.StatusFailed, []store.ExecutionStatus{store.StatusRunning}, func(e *store.Execution, _ time.Time) {
		e.ErrorMessage = l.masker.Mask(message)
	})
}

// Cancel marks a PENDING or RUNNING execution CANCELLED.
func (l *Ledger) Cancel(ctx context.Context, id string) (*store.Execution, error) {
	return l.transition(ctx, id, store.StatusCancelled, []store.ExecutionStatus{store.StatusPending, store.StatusRunning}, nil)
}

func (l *Ledger) transition(
	ctx context.Context,
	id string,
	to store.ExecutionStatus,
	allowed []store.ExecutionStatus,
	mutate func(*store.Execution, time.Time),
) (*store.Execution, error) {
	exec, err := l.execs.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	from := exec.Status
	if !slices.Contains(allowed, from) {
		return nil, &areaserrors.TransitionError{ExecutionID: id, From: string(from), To: string(to)}
	}

	now := l.now().UTC()
	exec.Status = to
	if to.IsTerminal() {
		exec.CompletedAt = &now
	}
	if mutate != nil {
		mutate(exec, now)
	}

	// The store re-checks from, so a concurrent transition loses.
	if err := l.execs.UpdateExecution(ctx, exec, from); err != nil {
		return nil, err
	}

	l.emit(ctx, exec, from)
	return exec, nil
}

func (l *Ledger) emit(ctx context.Context, exec *store.Execution, from store.ExecutionStatus) {
	l.metrics.RecordTransition(ctx, string(from), string(exec.Status))

	l.logger.Debug("execution transition",
		slog.String("execution_id", exec.ID),
		slog.String("area_id", exec.AreaID),
		slog.String("from", string(from)),
		slog.String("to", string(exec.Status)))

	ev := events.ExecutionEvent{
		ExecutionID:     exec.ID,
		AreaID:          exec.AreaID,
		From:            string(from),
		Status:          string(exec.Status),
		ErrorMessage:    exec.ErrorMessage,
		ExecutionTimeMs: exec.ExecutionTimeMs,
		OccurredAt:      l.now().UTC(),
	}
	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.logger.Warn("failed to publish execution event",
			slog.String("execution_id", exec.ID),
			slog.Any("error", err))
	}
}

// Get returns one execution or a NotFoundError.
func (l *Ledger) Get(ctx context.Context, id string) (*store.Execution, error) {
	return l.execs.GetExecution(ctx, id)
}

// ListByArea returns an Area's executions newest first. limit <= 0 means all.
func (l *Ledger) ListByArea(ctx context.Context, areaID string, limit int) ([]*store.Execution, error) {
	return l.execs.ListExecutions(ctx, store.ExecutionFilter{AreaID: areaID, Limit: limit})
}

// ListByStatus returns executions in one status newest first.
func (l *Ledger) ListByStatus(ctx context.Context, status store.ExecutionStatus, limit int) ([]*store.Execution, error) {
	if !status.Valid() {
		return nil, &areaserrors.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	return l.execs.ListExecutions(ctx, store.ExecutionFilter{Status: status, Limit: limit})
}

// LongRunning returns RUNNING executions started more than threshold ago.
func (l *Ledger) LongRunning(ctx context.Context, threshold time.Duration) ([]*store.Execution, error) {
	before := l.now().Add(-threshold).UTC()
	return l.execs.ListExecutions(ctx, store.ExecutionFilter{Status: store.StatusRunning, StartedBefore: &before})
}

// Recent returns the newest executions across all Areas.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*store.Execution, error) {
	return l.execs.ListExecutions(ctx, store.ExecutionFilter{Limit: limit})
}

// Stats aggregates executions, optionally for one Area.
func (l *Ledger) Stats(ctx context.Context, areaID string) (*store.ExecutionStats, error) {
	return l.execs.ExecutionStats(ctx, areaID)
}

// Remove deletes one execution.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	return l.execs.DeleteExecution(ctx, id)
}

// Cleanup deletes terminal executions created more than olderThanDays ago.
func (l *Ledger) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -olderThanDays).UTC()
	n, err := l.execs.DeleteTerminalExecutionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info("removed old executions",
			slog.Int64("count", n),
			slog.Int("older_than_days", olderThanDays))
	}
	return n, nil
}
