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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/ledger"
)

// MaintenanceCadence is the name of the retention cadence.
const MaintenanceCadence = "maintenance"

// MaintenanceConfig configures retention and long-running checks.
type MaintenanceConfig struct {
	HookStates *hookstate.Store
	Ledger     *ledger.Ledger

	// HookStateRetentionDays removes dated timer occurrence keys not
	// updated for this many days. Zero disables the cleanup.
	HookStateRetentionDays int

	// ExecutionRetentionDays removes terminal executions older than this.
	// Zero disables the cleanup.
	ExecutionRetentionDays int

	// LongRunningThreshold logs RUNNING executions older than this. Zero
	// disables the check.
	LongRunningThreshold time.Duration

	Logger *slog.Logger
}

// Maintenance prunes old state and reports stuck executions.
type Maintenance struct {
	cfg    MaintenanceConfig
	logger *slog.Logger
}

// NewMaintenance creates a Maintenance task.
func NewMaintenance(cfg MaintenanceConfig) *Maintenance {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Maintenance{cfg: cfg, logger: cfg.Logger.With(slog.String("component", "maintenance"))}
}

// Cadence returns a cadence running m every interval.
func (m *Maintenance) Cadence(interval time.Duration) Cadence {
	return Cadence{Name: MaintenanceCadence, Interval: interval, Task: m.Run}
}

// Run performs one maintenance pass. Every step runs even when an earlier
// one fails.
func (m *Maintenance) Run(ctx context.Context, _ time.Time) error {
	var errs []error

	if m.cfg.HookStateRetentionDays > 0 && m.cfg.HookStates != nil {
		if _, err := m.cfg.HookStates.Cleanup(ctx, m.cfg.HookStateRetentionDays); err != nil {
			errs = append(errs, fmt.Errorf("hook state cleanup: %w", err))
		}
	}

	if m.cfg.ExecutionRetentionDays > 0 && m.cfg.Ledger != nil {
		if _, err := m.cfg.Ledger.Cleanup(ctx, m.cfg.ExecutionRetentionDays); err != nil {
			errs = append(errs, fmt.Errorf("execution cleanup: %w", err))
		}
	}

	if m.cfg.LongRunningThreshold > 0 && m.cfg.Ledger != nil {
		stuck, err := m.cfg.Ledger.LongRunning(ctx, m.cfg.LongRunningThreshold)
		if err != nil {
			errs = append(errs, fmt.Errorf("long-running check: %w", err))
		}
		for _, e := range stuck {
			m.logger.Warn("execution running longer than threshold",
				slog.String("execution_id", e.ID),
				slog.String("area_id", e.AreaID),
				slog.Time("started_at", e.StartedAt))
		}
	}

	return errors.Join(errs...)
}
