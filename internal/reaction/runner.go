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

package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/params"
	"github.com/tombee/areas/internal/telemetry"
)

// TokenSource yields access tokens for an Area owner's linked account.
type TokenSource interface {
	AccessToken(ctx context.Context, userID, service string) (string, error)
}

// Call is one reaction invocation with its resolved parameters.
type Call struct {
	*Job

	// Params are the reaction parameters interpolated against trigger_data.
	Params params.Values

	tokens TokenSource
}

// Token returns the Area owner's access token for service.
func (c *Call) Token(ctx context.Context, service string) (string, error) {
	if c.tokens == nil {
		return "", fmt.Errorf("no token source configured for %s", service)
	}
	return c.tokens.AccessToken(ctx, c.Area.UserID, service)
}

// Func performs a reaction and returns the audit result stored on success.
type Func func(ctx context.Context, call *Call) (map[string]any, error)

// RunnerConfig contains Runner dependencies.
type RunnerConfig struct {
	Ledger *ledger.Ledger
	Params *params.Resolver
	Tokens TokenSource

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// Runner turns a Func into a Handler that owns the execution outcome:
// parameter errors, token errors, API errors and panics all end in Fail.
type Runner struct {
	ledger  *ledger.Ledger
	params  *params.Resolver
	tokens  TokenSource
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		ledger:  cfg.Ledger,
		params:  cfg.Params,
		tokens:  cfg.Tokens,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With(slog.String("component", "reaction")),
	}
}

// Handler wraps fn under the reaction name used in logs and metrics.
func (r *Runner) Handler(name string, fn Func) Handler {
	return HandlerFunc(func(ctx context.Context, job *Job) {
		r.run(ctx, name, fn, job)
	})
}

func (r *Runner) run(ctx context.Context, name string, fn Func, job *Job) {
	logger := r.logger.With(
		slog.String("reaction", name),
		slog.String("area_id", job.Area.ID),
		slog.String("execution_id", job.Execution.ID))
	start := time.Now()

	result, err := r.invoke(ctx, fn, job)
	r.metrics.RecordReaction(ctx, name, time.Since(start), err)

	if err != nil {
		logger.Warn("reaction failed", slog.Any("error", err))
		if _, ferr := r.ledger.Fail(ctx, job.Execution.ID, err.Error()); ferr != nil {
			logger.Error("could not record failure", slog.Any("error", ferr))
		}
		return
	}

	if _, cerr := r.ledger.Complete(ctx, job.Execution.ID, result); cerr != nil {
		logger.Error("could not record success", slog.Any("error", cerr))
		return
	}
	logger.Info("reaction completed", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}

func (r *Runner) invoke(ctx context.Context, fn Func, job *Job) (result map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reaction panicked: %v", p)
		}
	}()

	values, err := r.params.Resolve(ctx, job.Area.ID, job.Component.ID, job.Execution.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("resolve parameters: %w", err)
	}
	result, err = fn(ctx, &Call{Job: job, Params: values, tokens: r.tokens})
	if err == nil && result == nil {
		result = map[string]any{}
	}
	return result, err
}
