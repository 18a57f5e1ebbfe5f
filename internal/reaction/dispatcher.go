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

// Package reaction routes executions to the side-effecting handler named
// by the Area's reaction component.
//
// The Dispatcher only fails when it cannot hand the execution to a
// handler. Once a handler runs it owns the execution's outcome and marks
// it SUCCESS or FAILED itself.
package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Job is everything a handler needs about one execution.
type Job struct {
	Area      *store.Area
	Component *store.Component
	Execution *store.Execution
}

// Handler performs one reaction and records its outcome in the ledger.
// Handle must not panic or leave the execution RUNNING.
type Handler interface {
	Handle(ctx context.Context, job *Job)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) { f(ctx, job) }

// Lookups are the reads the Dispatcher performs before routing.
type Lookups interface {
	GetComponent(ctx context.Context, id string) (*store.Component, error)
	GetArea(ctx context.Context, id string) (*store.Area, error)
	GetExecution(ctx context.Context, id string) (*store.Execution, error)
}

// DispatcherConfig contains Dispatcher dependencies.
type DispatcherConfig struct {
	Lookups Lookups
	Logger  *slog.Logger
}

// Dispatcher maps reaction component names to handlers.
type Dispatcher struct {
	lookups Lookups
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty Dispatcher. Register handlers before the
// scheduler starts.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		lookups:  cfg.Lookups,
		logger:   cfg.Logger.With(slog.String("component", "dispatcher")),
		handlers: make(map[string]Handler),
	}
}

// Register binds a reaction component name to h, replacing any previous
// binding.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Names lists the registered reaction names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProcessReaction runs the handler for the reaction component. It returns
// an error only when no handler could be invoked.
func (d *Dispatcher) ProcessReaction(ctx context.Context, reactionComponentID, executionID, areaID string) error {
	component, err := d.lookups.GetComponent(ctx, reactionComponentID)
	if err != nil {
		if areaserrors.IsNotFound(err) {
			return fmt.Errorf("reaction component not found: %s", reactionComponentID)
		}
		return fmt.Errorf("load reaction component %s: %w", reactionComponentID, err)
	}

	d.mu.RLock()
	h, ok := d.handlers[component.Name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown reaction component %q", component.Name)
	}

	area, err := d.lookups.GetArea(ctx, areaID)
	if err != nil {
		return fmt.Errorf("load area %s: %w", areaID, err)
	}
	exec, err := d.lookups.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", executionID, err)
	}

	d.logger.Debug("dispatching reaction",
		slog.String("reaction", component.Name),
		slog.String("area_id", areaID),
		slog.String("execution_id", executionID))
	h.Handle(ctx, &Job{Area: area, Component: component, Execution: exec})
	return nil
}
