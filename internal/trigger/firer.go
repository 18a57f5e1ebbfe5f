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

package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/telemetry"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Dispatcher routes an execution to its reaction handler.
type Dispatcher interface {
	ProcessReaction(ctx context.Context, reactionComponentID, executionID, areaID string) error
}

// AreaRecorder bumps an Area's trigger bookkeeping.
type AreaRecorder interface {
	RecordTrigger(ctx context.Context, id string, at time.Time) error
}

// FirerConfig contains Firer dependencies.
type FirerConfig struct {
	Ledger     *ledger.Ledger
	Areas      AreaRecorder
	Dispatcher Dispatcher

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	// TracerProvider defaults to the otel global.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
}

// Firer turns positive evaluations into executions.
type Firer struct {
	ledger     *ledger.Ledger
	areas      AreaRecorder
	dispatcher Dispatcher
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewFirer creates a Firer.
func NewFirer(cfg FirerConfig) *Firer {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Firer{
		ledger:     cfg.Ledger,
		areas:      cfg.Areas,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		tracer:     cfg.TracerProvider.Tracer("github.com/tombee/areas/internal/trigger"),
		logger:     cfg.Logger.With(slog.String("component", "firer")),
	}
}

// Run evaluates one Area and fires it when the evaluator matched. A
// misconfigured Area is logged and skipped without an error.
func (f *Firer) Run(ctx context.Context, ev Evaluator, area *store.Area, now time.Time) (bool, error) {
	ctx, span := f.tracer.Start(ctx, "trigger.evaluate", trace.WithAttributes(
		attribute.String("areas.trigger", ev.Name()),
		attribute.String("areas.area_id", area.ID),
	))
	defer span.End()

	fire, err := ev.Evaluate(ctx, area, now)
	switch {
	case areaserrors.IsValidation(err):
		f.metrics.RecordEvaluation(ctx, ev.Name(), telemetry.ResultSkipped)
		f.logger.Warn("skipping misconfigured area",
			slog.String("area_id", area.ID),
			slog.String("trigger", ev.Name()),
			slog.Any("error", err))
		return false, nil
	case err != nil:
		f.metrics.RecordEvaluation(ctx, ev.Name(), telemetry.ResultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	case fire == nil:
		f.metrics.RecordEvaluation(ctx, ev.Name(), telemetry.ResultSkipped)
		return false, nil
	}

	f.metrics.RecordEvaluation(ctx, ev.Name(), telemetry.ResultFired)
	if _, err := f.Fire(ctx, area, fire, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return true, err
	}
	return true, nil
}

// Fire records an execution for fire, dispatches the reaction and bumps
// the Area's trigger count. A dispatch error fails the execution; the
// trigger is still counted.
func (f *Firer) Fire(ctx context.Context, area *store.Area, fire *Fire, now time.Time) (*store.Execution, error) {
	ctx, span := f.tracer.Start(ctx, "trigger.fire", trace.WithAttributes(
		attribute.String("areas.area_id", area.ID),
		attribute.String("areas.reaction_component_id", area.ReactionComponentID),
	))
	defer span.End()

	exec, err := f.ledger.Create(ctx, ledger.Draft{AreaID: area.ID, TriggerData: fire.TriggerData, StartedAt: now})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("areas.execution_id", exec.ID))

	if _, err := f.ledger.Start(ctx, exec.ID); err != nil {
		return exec, err
	}

	logger := f.logger.With(
		slog.String("area_id", area.ID),
		slog.String("execution_id", exec.ID))
	logger.Info("area fired", slog.String("trigger", area.ActionName))

	if err := f.dispatcher.ProcessReaction(ctx, area.ReactionComponentID, exec.ID, area.ID); err != nil {
		span.RecordError(err)
		logger.Error("reaction dispatch failed", slog.Any("error", err))
		if _, ferr := f.ledger.Fail(ctx, exec.ID, err.Error()); ferr != nil {
			logger.Warn("could not fail execution", slog.Any("error", ferr))
		}
	}

	if err := f.areas.RecordTrigger(ctx, area.ID, now); err != nil {
		return exec, fmt.Errorf("record trigger: %w", err)
	}
	return exec, nil
}
