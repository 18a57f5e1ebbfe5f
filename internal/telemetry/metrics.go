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

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Evaluation outcomes recorded by RecordEvaluation.
const (
	ResultFired   = "fired"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Metrics holds the engine's instruments. A nil *Metrics records nothing.
type Metrics struct {
	evaluations metric.Int64Counter
	fires       metric.Int64Counter
	transitions metric.Int64Counter
	running     metric.Int64UpDownCounter
	areaErrors  metric.Int64Counter
	webhooks    metric.Int64Counter

	reactionLatency metric.Float64Histogram
	tickDuration    metric.Float64Histogram
}

// NewMetrics creates the instruments on the given meter provider.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter("github.com/tombee/areas")
	m := &Metrics{}

	var err error
	m.evaluations, err = meter.Int64Counter(
		"areas_trigger_evaluations_total",
		metric.WithDescription("Trigger evaluations by trigger and result"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, err
	}

	m.fires, err = meter.Int64Counter(
		"areas_trigger_fires_total",
		metric.WithDescription("Areas fired by trigger"),
		metric.WithUnit("{fire}"),
	)
	if err != nil {
		return nil, err
	}

	m.transitions, err = meter.Int64Counter(
		"areas_execution_transitions_total",
		metric.WithDescription("Execution status transitions by target status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.running, err = meter.Int64UpDownCounter(
		"areas_executions_running",
		metric.WithDescription("Executions currently RUNNING"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	m.areaErrors, err = meter.Int64Counter(
		"areas_scheduler_area_errors_total",
		metric.WithDescription("Per-Area evaluation failures isolated by the scheduler"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.webhooks, err = meter.Int64Counter(
		"areas_webhook_events_total",
		metric.WithDescription("Inbound webhook deliveries by event and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.reactionLatency, err = meter.Float64Histogram(
		"areas_reaction_duration_seconds",
		metric.WithDescription("Reaction dispatch latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.tickDuration, err = meter.Float64Histogram(
		"areas_scheduler_tick_duration_seconds",
		metric.WithDescription("Scheduler tick duration by cadence"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordEvaluation counts one evaluator outcome.
func (m *Metrics) RecordEvaluation(ctx context.Context, trigger, result string) {
	if m == nil {
		return
	}
	m.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("result", result),
	))
	if result == ResultFired {
		m.fires.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	}
}

// RecordTransition counts an execution moving from one status to another.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", to)))
	if to == "RUNNING" {
		m.running.Add(ctx, 1)
	} else if from == "RUNNING" {
		m.running.Add(ctx, -1)
	}
}

// RecordAreaError counts a per-Area failure during a tick.
func (m *Metrics) RecordAreaError(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.areaErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordWebhook counts one webhook delivery.
func (m *Metrics) RecordWebhook(ctx context.Context, event, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

// RecordReaction records how long a reaction dispatch took.
func (m *Metrics) RecordReaction(ctx context.Context, reaction string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.reactionLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("reaction", reaction),
		attribute.String("status", status),
	))
}

// RecordTick records the duration of one scheduler tick.
func (m *Metrics) RecordTick(ctx context.Context, cadence string, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("cadence", cadence)))
}
