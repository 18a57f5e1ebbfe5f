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

// Package scheduler drives trigger evaluation on fixed cadences.
//
// Each cadence owns one goroutine and one ticker, so ticks of the same
// cadence never overlap: a tick that runs long makes the ticker drop the
// ticks it missed. Within a tick, Areas are evaluated sequentially or by a
// bounded worker pool, and a failing or panicking Area never stops its
// siblings.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/telemetry"
	"github.com/tombee/areas/internal/trigger"
)

// AreaLister finds the Areas an evaluator is responsible for.
type AreaLister interface {
	ListActiveAreasByAction(ctx context.Context, actionName string) ([]*store.Area, error)
}

// Runner evaluates and, when matched, fires one Area.
type Runner interface {
	Run(ctx context.Context, ev trigger.Evaluator, area *store.Area, now time.Time) (bool, error)
}

// Cadence is a set of evaluators run together at a fixed interval, or a
// Task run at that interval.
type Cadence struct {
	Name       string
	Interval   time.Duration
	Evaluators []trigger.Evaluator

	// Task replaces evaluator processing when set.
	Task func(ctx context.Context, now time.Time) error
}

// Config contains scheduler configuration.
type Config struct {
	Cadences []Cadence
	Areas    AreaLister
	Runner   Runner

	// Workers bounds per-tick concurrency. Values below 2 process Areas
	// sequentially.
	Workers int

	// Now returns the evaluation time of a tick. Defaults to time.Now.
	Now func() time.Time

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// TickResult summarises one tick.
type TickResult struct {
	Evaluated int64
	Fired     int64
	Errors    int64
}

type cadenceState struct {
	Cadence

	lastTick   *time.Time
	tickCount  int64
	fireCount  int64
	errorCount int64
}

// Scheduler runs cadences until stopped.
type Scheduler struct {
	areas   AreaLister
	runner  Runner
	workers int
	now     func() time.Time
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	cadences []*cadenceState
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	s := &Scheduler{
		areas:   cfg.Areas,
		runner:  cfg.Runner,
		workers: cfg.Workers,
		now:     cfg.Now,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With(slog.String("component", "scheduler")),
	}
	seen := make(map[string]bool)
	for _, c := range cfg.Cadences {
		if c.Name == "" || c.Interval <= 0 {
			return nil, fmt.Errorf("cadence %q needs a name and a positive interval", c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate cadence %q", c.Name)
		}
		seen[c.Name] = true
		s.cadences = append(s.cadences, &cadenceState{Cadence: c})
	}
	return s, nil
}

// Start launches one loop per cadence. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, c := range s.cadences {
		s.wg.Add(1)
		go s.run(ctx, c)
	}
	s.logger.Info("scheduler started", slog.Int("cadences", len(s.cadences)), slog.Int("workers", s.workers))
}

// Stop cancels the loops and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, c *cadenceState) {
	defer s.wg.Done()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, c)
		}
	}
}

// Tick runs one tick of the named cadence synchronously.
func (s *Scheduler) Tick(ctx context.Context, name string) (TickResult, error) {
	for _, c := range s.cadences {
		if c.Name == name {
			return s.tick(ctx, c), nil
		}
	}
	return TickResult{}, fmt.Errorf("unknown cadence %q", name)
}

func (s *Scheduler) tick(ctx context.Context, c *cadenceState) TickResult {
	start := time.Now()
	now := s.now()
	logger := s.logger.With(slog.String("cadence", c.Name))

	var res TickResult
	if c.Task != nil {
		if err := s.safeTask(ctx, c, now); err != nil {
			res.Errors++
			logger.Error("cadence task failed", slog.Any("error", err))
		}
	} else {
		for _, ev := range c.Evaluators {
			if ctx.Err() != nil {
				break
			}
			r := s.evaluate(ctx, ev, now)
			res.Evaluated += r.Evaluated
			res.Fired += r.Fired
			res.Errors += r.Errors
		}
	}

	s.mu.Lock()
	c.lastTick = &now
	c.tickCount++
	c.fireCount += res.Fired
	c.errorCount += res.Errors
	s.mu.Unlock()

	s.metrics.RecordTick(ctx, c.Name, time.Since(start))
	if res.Fired > 0 || res.Errors > 0 {
		logger.Info("tick complete",
			slog.Int64("evaluated", res.Evaluated),
			slog.Int64("fired", res.Fired),
			slog.Int64("errors", res.Errors),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
	return res
}

func (s *Scheduler) safeTask(ctx context.Context, c *cadenceState, now time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return c.Task(ctx, now)
}

// evaluate processes every active Area of one evaluator. Each Area is
// handed to exactly one worker.
func (s *Scheduler) evaluate(ctx context.Context, ev trigger.Evaluator, now time.Time) TickResult {
	var evaluated, fired, errs atomic.Int64

	areas, err := s.areas.ListActiveAreasByAction(ctx, ev.Name())
	if err != nil {
		s.logger.Error("list areas failed", slog.String("trigger", ev.Name()), slog.Any("error", err))
		s.metrics.RecordAreaError(ctx, ev.Name())
		return TickResult{Errors: 1}
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, area := range areas {
		g.Go(func() error {
			evaluated.Add(1)
			ok, err := s.processArea(ctx, ev, area, now)
			if err != nil {
				errs.Add(1)
				s.metrics.RecordAreaError(ctx, ev.Name())
				s.logger.Error("area evaluation failed",
					slog.String("trigger", ev.Name()),
					slog.String("area_id", area.ID),
					slog.Any("error", err))
				return nil
			}
			if ok {
				fired.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	return TickResult{Evaluated: evaluated.Load(), Fired: fired.Load(), Errors: errs.Load()}
}

func (s *Scheduler) processArea(ctx context.Context, ev trigger.Evaluator, area *store.Area, now time.Time) (fired bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			s.logger.Debug("recovered panic", slog.String("stack", string(debug.Stack())))
		}
	}()
	return s.runner.Run(ctx, ev, area, now)
}

// CadenceStatus contains status information for a cadence.
type CadenceStatus struct {
	Name       string     `json:"name"`
	Interval   string     `json:"interval"`
	Triggers   []string   `json:"triggers,omitempty"`
	LastTick   *time.Time `json:"last_tick,omitempty"`
	TickCount  int64      `json:"tick_count"`
	FireCount  int64      `json:"fire_count"`
	ErrorCount int64      `json:"error_count"`
}

// Status returns the status of every cadence in configuration order.
func (s *Scheduler) Status() []CadenceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CadenceStatus, 0, len(s.cadences))
	for _, c := range s.cadences {
		st := CadenceStatus{
			Name:       c.Name,
			Interval:   c.Interval.String(),
			LastTick:   c.lastTick,
			TickCount:  c.tickCount,
			FireCount:  c.fireCount,
			ErrorCount: c.errorCount,
		}
		for _, ev := range c.Evaluators {
			st.Triggers = append(st.Triggers, ev.Name())
		}
		out = append(out, st)
	}
	return out
}
