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
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
)

func TestMaintenance_Run(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	defer backend.Close()

	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	clock := now.AddDate(0, 0, -45)
	nowFn := func() time.Time { return clock }

	states := hookstate.New(hookstate.Config{States: backend, Now: nowFn})
	l := ledger.New(ledger.Config{Executions: backend, Now: nowFn})
	area := storetest.SeedArea(t, backend, storetest.AreaOptions{})

	// Written 45 days ago.
	oldKey := hookstate.DailyTimerKey(area.ID, clock)
	_, err := states.Claim(ctx, area.ID, oldKey, hookstate.FiredMarker)
	require.NoError(t, err)
	require.NoError(t, states.Set(ctx, area.ID, hookstate.RepositoryKey, "acme/widgets"))
	require.NoError(t, states.Set(ctx, area.ID, hookstate.IntervalTimerKey(area.ID), clock.Format(time.RFC3339)))
	oldExec, err := l.Create(ctx, ledger.Draft{AreaID: area.ID})
	require.NoError(t, err)
	_, err = l.Cancel(ctx, oldExec.ID)
	require.NoError(t, err)
	stuck, err := l.Create(ctx, ledger.Draft{AreaID: area.ID})
	require.NoError(t, err)
	_, err = l.Start(ctx, stuck.ID)
	require.NoError(t, err)

	clock = now
	freshKey := hookstate.DailyTimerKey(area.ID, now)
	_, err = states.Claim(ctx, area.ID, freshKey, hookstate.FiredMarker)
	require.NoError(t, err)

	var logs bytes.Buffer
	m := NewMaintenance(MaintenanceConfig{
		HookStates:             states,
		Ledger:                 l,
		HookStateRetentionDays: 30,
		ExecutionRetentionDays: 30,
		LongRunningThreshold:   time.Hour,
		Logger:                 slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, m.Run(ctx, now))

	_, found, err := states.Get(ctx, area.ID, oldKey)
	require.NoError(t, err)
	assert.False(t, found, "stale occurrence key is removed")
	_, found, err = states.Get(ctx, area.ID, freshKey)
	require.NoError(t, err)
	assert.True(t, found)

	repo, found, err := states.Get(ctx, area.ID, hookstate.RepositoryKey)
	require.NoError(t, err)
	assert.True(t, found, "repository filter survives retention")
	assert.Equal(t, "acme/widgets", repo)
	_, found, err = states.Get(ctx, area.ID, hookstate.IntervalTimerKey(area.ID))
	require.NoError(t, err)
	assert.True(t, found, "interval cursor survives retention")

	_, err = l.Get(ctx, oldExec.ID)
	assert.Error(t, err)
	got, err := l.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, got.Status)

	assert.Contains(t, logs.String(), "execution running longer than threshold")
	assert.Contains(t, logs.String(), stuck.ID)
}

func TestMaintenance_Cadence(t *testing.T) {
	c := NewMaintenance(MaintenanceConfig{}).Cadence(time.Hour)
	assert.Equal(t, MaintenanceCadence, c.Name)
	assert.NotNil(t, c.Task)
	assert.NoError(t, c.Task(context.Background(), time.Now()))
}
