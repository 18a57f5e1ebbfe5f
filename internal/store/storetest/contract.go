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

package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := base.Add(d)
	return &t
}

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, newStore(t)) })
	t.Run("AreaKindsValidated", func(t *testing.T) { testAreaKinds(t, newStore(t)) })
	t.Run("ListActiveAreasByAction", func(t *testing.T) { testListActive(t, newStore(t)) })
	t.Run("RecordTrigger", func(t *testing.T) { testRecordTrigger(t, newStore(t)) })
	t.Run("AreaParameters", func(t *testing.T) { testAreaParameters(t, newStore(t)) })
	t.Run("HookStateUpsertIdempotent", func(t *testing.T) { testHookStateUpsert(t, newStore(t)) })
	t.Run("HookStateInsertIfAbsent", func(t *testing.T) { testHookStateInsertIfAbsent(t, newStore(t)) })
	t.Run("HookStateFilters", func(t *testing.T) { testHookStateFilters(t, newStore(t)) })
	t.Run("ExecutionLifecycle", func(t *testing.T) { testExecutionLifecycle(t, newStore(t)) })
	t.Run("ExecutionList", func(t *testing.T) { testExecutionList(t, newStore(t)) })
	t.Run("ExecutionStatsAndCleanup", func(t *testing.T) { testExecutionStats(t, newStore(t)) })
	t.Run("DeleteAreaCascades", func(t *testing.T) { testDeleteArea(t, newStore(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
}

func testCatalog(t *testing.T, s store.Store) {
	ctx := context.Background()

	svc := &store.Service{Name: "clock", DisplayName: "Clock"}
	require.NoError(t, s.CreateService(ctx, svc))
	require.NotEmpty(t, svc.ID)

	got, err := s.GetServiceByName(ctx, "clock")
	require.NoError(t, err)
	assert.Equal(t, "Clock", got.DisplayName)

	_, err = s.GetServiceByName(ctx, "nope")
	assert.True(t, areaserrors.IsNotFound(err))

	c := &store.Component{ServiceID: svc.ID, Name: "daily_timer", Kind: store.KindAction}
	require.NoError(t, s.CreateComponent(ctx, c))

	gotC, err := s.GetComponent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.KindAction, gotC.Kind)

	_, err = s.GetComponent(ctx, "missing-component")
	assert.True(t, areaserrors.IsNotFound(err))

	def := "09:00"
	require.NoError(t, s.CreateVariable(ctx, &store.Variable{ComponentID: c.ID, Name: "time", Kind: store.VariableParameter, Required: true, DefaultValue: &def}))
	vars, err := s.ListVariables(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.True(t, vars[0].Required)
	require.NotNil(t, vars[0].DefaultValue)
	assert.Equal(t, "09:00", *vars[0].DefaultValue)

	comps, err := s.ListComponents(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, comps, 1)
}

func testAreaKinds(t *testing.T, s store.Store) {
	ctx := context.Background()
	action := EnsureComponent(t, s, TestService, "daily_timer", store.KindAction)
	reaction := EnsureComponent(t, s, TestService, "send_email", store.KindReaction)

	err := s.CreateArea(ctx, &store.Area{UserID: "u", ActionComponentID: reaction.ID, ReactionComponentID: reaction.ID, Name: "bad"})
	assert.True(t, areaserrors.IsValidation(err), "got %v", err)

	err = s.CreateArea(ctx, &store.Area{UserID: "u", ActionComponentID: action.ID, ReactionComponentID: "missing", Name: "bad"})
	assert.True(t, areaserrors.IsNotFound(err), "got %v", err)

	area := &store.Area{UserID: "u", ActionComponentID: action.ID, ReactionComponentID: reaction.ID, Name: "ok", IsActive: true}
	require.NoError(t, s.CreateArea(ctx, area))

	got, err := s.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, "daily_timer", got.ActionName)
	assert.Equal(t, "send_email", got.ReactionName)
	assert.Zero(t, got.TriggeredCount)
	assert.Nil(t, got.LastTriggeredAt)
}

func testListActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	a1 := SeedArea(t, s, AreaOptions{Action: "daily_timer"})
	SeedArea(t, s, AreaOptions{Action: "daily_timer", Inactive: true})
	SeedArea(t, s, AreaOptions{Action: "weekly_timer"})

	areas, err := s.ListActiveAreasByAction(ctx, "daily_timer")
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, a1.ID, areas[0].ID)

	require.NoError(t, s.SetAreaActive(ctx, a1.ID, false))
	areas, err = s.ListActiveAreasByAction(ctx, "daily_timer")
	require.NoError(t, err)
	assert.Empty(t, areas)
}

func testRecordTrigger(t *testing.T, s store.Store) {
	ctx := context.Background()
	area := SeedArea(t, s, AreaOptions{})

	require.NoError(t, s.RecordTrigger(ctx, area.ID, base))
	require.NoError(t, s.RecordTrigger(ctx, area.ID, base.Add(time.Minute)))

	got, err := s.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TriggeredCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(base.Add(time.Minute)))

	err = s.RecordTrigger(ctx, "missing", base)
	assert.True(t, areaserrors.IsNotFound(err))
}

func testAreaParameters(t *testing.T, s store.Store) {
	ctx := context.Background()
	area := SeedArea(t, s, AreaOptions{
		Action:         "daily_timer",
		Reaction:       "send_email",
		ActionParams:   map[string]string{"time": "09:00"},
		ReactionParams: map[string]string{"email_recipient": "x@y.com"},
	})

	// Overwrite keeps one row per variable.
	SetParam(t, s, area.ID, area.ActionComponentID, "time", "10:30")

	params, err := s.ListAreaParameters(ctx, area.ID)
	require.NoError(t, err)
	require.Len(t, params, 2)

	byName := map[string]*store.AreaParameter{}
	for _, p := range params {
		byName[p.VariableName] = p
	}
	assert.Equal(t, "10:30", byName["time"].Value)
	assert.Equal(t, area.ActionComponentID, byName["time"].ComponentID)
	assert.Equal(t, "x@y.com", byName["email_recipient"].Value)
	assert.Equal(t, area.ReactionComponentID, byName["email_recipient"].ComponentID)
}

func testHookStateUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	area := SeedArea(t, s, AreaOptions{})

	_, err := s.GetHookState(ctx, area.ID, "cursor")
	assert.True(t, areaserrors.IsNotFound(err))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.UpsertHookState(ctx, &store.HookState{
			AreaID: area.ID, StateKey: "cursor", StateValue: "v", LastCheckedAt: at(0), UpdatedAt: base,
		}))
	}
	require.NoError(t, s.UpsertHookState(ctx, &store.HookState{
		AreaID: area.ID, StateKey: "cursor", StateValue: "v2", LastCheckedAt: at(time.Hour), UpdatedAt: base.Add(time.Hour),
	}))

	all, err := s.ListHookStates(ctx, store.HookStateFilter{AreaID: area.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := s.GetHookState(ctx, area.ID, "cursor")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.StateValue)
	assert.True(t, got.CreatedAt.Equal(base), "created_at should be preserved")
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, got.LastCheckedAt.Equal(base.Add(time.Hour)))
}

func testHookStateInsertIfAbsent(t *testing.T, s store.Store) {
	ctx := context.Background()
	area := SeedArea(t, s, AreaOptions{})
	hs := &store.HookState{AreaID: area.ID, StateKey: "daily_timer_x_2025-03-01", StateValue: "fired", UpdatedAt: base}

	inserted, err := s.InsertHookStateIfAbsent(ctx, hs)
	require.NoError(t, err)
	assert.True(t, inserted)

	hs.StateValue = "again"
	inserted, err = s.InsertHookStateIfAbsent(ctx, hs)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetHookState(ctx, area.ID, hs.StateKey)
	require.NoError(t, err)
	assert.Equal(t, "fired", got.StateValue)
}

func testHookStateFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	a1 := SeedArea(t, s, AreaOptions{})
	a2 := SeedArea(t, s, AreaOptions{})

	upsert := func(areaID, key string, checked *time.Time, updated time.Time) {
		require.NoError(t, s.UpsertHookState(ctx, &store.HookState{
			AreaID: areaID, StateKey: key, StateValue: "x", LastCheckedAt: checked, UpdatedAt: updated,
		}))
	}
	upsert(a1.ID, "gmail_last_email_id", at(-10*time.Minute), base.Add(-10*time.Minute))
	upsert(a1.ID, "gmail_last_check", at(-2*time.Hour), base.Add(-2*time.Hour))
	upsert(a2.ID, "repository", nil, base.Add(-72*time.Hour))
	upsert(a2.ID, "GMAIL_upper", nil, base)

	byPrefix, err := s.ListHookStates(ctx, store.HookStateFilter{KeyPrefix: "gmail_"})
	require.NoError(t, err)
	require.Len(t, byPrefix, 2, "prefix match is case-sensitive")

	recent, err := s.ListHookStates(ctx, store.HookStateFilter{CheckedSince: at(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "gmail_last_email_id", recent[0].StateKey)

	never, err := s.ListHookStates(ctx, store.HookStateFilter{NeverChecked: true})
	require.NoError(t, err)
	assert.Len(t, never, 2)

	upsert(a2.ID, "daily_timer_"+a2.ID+"_2025-01-01", nil, base.Add(-72*time.Hour))

	n, err := s.DeleteHookStatesBefore(ctx, "daily_timer_", base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetHookState(ctx, a2.ID, "daily_timer_"+a2.ID+"_2025-01-01")
	assert.True(t, areaserrors.IsNotFound(err))
	_, err = s.GetHookState(ctx, a2.ID, "repository")
	assert.NoError(t, err, "keys outside the prefix are kept")

	_, err = s.DeleteHookStatesBefore(ctx, "", base)
	assert.Error(t, err)
}

func testExecutionLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	area := SeedArea(t, s, AreaOptions{})

	exec := &store.Execution{
		AreaID:      area.ID,
		Status:      store.StatusPending,
		TriggerData: map[string]any{"time": "09:00", "count": float64(3)},
		StartedAt:   base,
		CreatedAt:   base,
	}
	require.NoError(t, s.CreateExecution(ctx, exec))
	require.NotEmpty(t, exec.ID)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Equal(t, "09:00", got.TriggerData["time"])
	assert.Equal(t, float64(3), got.TriggerData["count"])
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ExecutionTimeMs)

	got.Status = store.StatusRunning
	require.NoError(t, s.UpdateExecution(ctx, got, store.StatusPending))

	// A stale writer still believing the row is PENDING is rejected.
	stale := *got
	stale.Status = store.StatusCancelled
	err = s.UpdateExecution(ctx, &stale, store.StatusPending)
	var te *areaserrors.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "RUNNING", te.From)
	assert.Equal(t, "CANCELLED", te.To)

	ms := int64(1500)
	got.Status = store.StatusSuccess
	got.CompletedAt = at(1500 * time.Millisecond)
	got.ExecutionTimeMs = &ms
	got.ExecutionResult = map[string]any{"recipient": "x@y.com"}
	require.NoError(t, s.UpdateExecution(ctx, got, store.StatusRunning))

	final, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, final.Status)
	require.NotNil(t, final.ExecutionTimeMs)
	assert.Equal(t, int64(1500), *final.ExecutionTimeMs)
	assert.Equal(t, "x@y.com", final.ExecutionResult["recipient"])
	assert.True(t, final.CompletedAt.Equal(base.Add(1500*time.Millisecond)))

	err = s.UpdateExecution(ctx, &store.Execution{ID: "missing", Status: store.StatusRunning}, store.StatusPending)
	assert.True(t, areaserrors.IsNotFound(err))

	_, err = s.GetExecution(ctx, "missing")
	assert.True(t, areaserrors.IsNotFound(err))
}

func testExecutionList(t *testing.T, s store.Store) {
	ctx := context.Background()
	a1 := SeedArea(t, s, AreaOptions{})
	a2 := SeedArea(t, s, AreaOptions{})

	mk := func(areaID string, status store.ExecutionStatus, started time.Duration) *store.Execution {
		e := &store.Execution{AreaID: areaID, Status: status, StartedAt: base.Add(started), CreatedAt: base.Add(started)}
		require.NoError(t, s.CreateExecution(ctx, e))
		return e
	}
	oldest := mk(a1.ID, store.StatusRunning, -3*time.Hour)
	mk(a1.ID, store.StatusSuccess, -2*time.Hour)
	newest := mk(a1.ID, store.StatusFailed, -1*time.Hour)
	mk(a2.ID, store.StatusRunning, -30*time.Minute)

	byArea, err := s.ListExecutions(ctx, store.ExecutionFilter{AreaID: a1.ID})
	require.NoError(t, err)
	require.Len(t, byArea, 3)
	assert.Equal(t, newest.ID, byArea[0].ID, "newest first")
	assert.Equal(t, oldest.ID, byArea[2].ID)

	running, err := s.ListExecutions(ctx, store.ExecutionFilter{Status: store.StatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	longRunning, err := s.ListExecutions(ctx, store.ExecutionFilter{Status: store.StatusRunning, StartedBefore: at(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, longRunning, 1)
	assert.Equal(t, oldest.ID, longRunning[0].ID)

	page, err := s.ListExecutions(ctx, store.ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := s.ListExecutions(ctx, store.ExecutionFilter{Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	require.NoError(t, s.DeleteExecution(ctx, newest.ID))
	assert.True(t, areaserrors.IsNotFound(s.DeleteExecution(ctx, newest.ID)))
}

func testExecutionStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	a1 := SeedArea(t, s, AreaOptions{})
	a2 := SeedArea(t, s, AreaOptions{})

	mk := func(areaID string, status store.ExecutionStatus, ms *int64, created time.Time) {
		require.NoError(t, s.CreateExecution(ctx, &store.Execution{
			AreaID: areaID, Status: status, ExecutionTimeMs: ms, StartedAt: created, CreatedAt: created,
		}))
	}
	ms100, ms300 := int64(100), int64(300)
	old := base.Add(-40 * 24 * time.Hour)
	mk(a1.ID, store.StatusSuccess, &ms100, old)
	mk(a1.ID, store.StatusSuccess, &ms300, base)
	mk(a1.ID, store.StatusFailed, nil, old)
	mk(a1.ID, store.StatusRunning, nil, old)
	mk(a2.ID, store.StatusPending, nil, base)

	stats, err := s.ExecutionStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[store.StatusSuccess])
	assert.InDelta(t, 200.0, stats.AvgExecutionTimeMs, 0.001)

	areaStats, err := s.ExecutionStats(ctx, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), areaStats.Total)
	assert.Zero(t, areaStats.AvgExecutionTimeMs)

	n, err := s.DeleteTerminalExecutionsBefore(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "old RUNNING rows survive cleanup")

	stats, err = s.ExecutionStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
}

func testDeleteArea(t *testing.T, s store.Store) {
	ctx := context.Background()
	area := SeedArea(t, s, AreaOptions{ActionParams: map[string]string{"time": "09:00"}})
	other := SeedArea(t, s, AreaOptions{ActionParams: map[string]string{"time": "10:00"}})

	for _, id := range []string{area.ID, other.ID} {
		require.NoError(t, s.UpsertHookState(ctx, &store.HookState{AreaID: id, StateKey: "k", StateValue: "v"}))
		require.NoError(t, s.CreateExecution(ctx, &store.Execution{AreaID: id, Status: store.StatusPending, StartedAt: base}))
	}

	require.NoError(t, s.DeleteArea(ctx, area.ID))

	_, err := s.GetArea(ctx, area.ID)
	assert.True(t, areaserrors.IsNotFound(err))
	params, err := s.ListAreaParameters(ctx, area.ID)
	require.NoError(t, err)
	assert.Empty(t, params)
	states, err := s.ListHookStates(ctx, store.HookStateFilter{AreaID: area.ID})
	require.NoError(t, err)
	assert.Empty(t, states)
	execs, err := s.ListExecutions(ctx, store.ExecutionFilter{AreaID: area.ID})
	require.NoError(t, err)
	assert.Empty(t, execs)

	// The other Area is untouched.
	execs, err = s.ListExecutions(ctx, store.ExecutionFilter{AreaID: other.ID})
	require.NoError(t, err)
	assert.Len(t, execs, 1)

	assert.True(t, areaserrors.IsNotFound(s.DeleteArea(ctx, area.ID)))
}

func testTokens(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetToken(ctx, "u1", "spotify")
	assert.True(t, areaserrors.IsNotFound(err))

	SaveToken(t, s, "u1", "spotify", &store.UserToken{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: at(time.Hour)})
	SaveToken(t, s, "u1", "spotify", &store.UserToken{AccessToken: "a2", RefreshToken: "r1", ExpiresAt: at(2 * time.Hour), Scope: "user-modify-playback-state"})

	tok, err := s.GetToken(ctx, "u1", "spotify")
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.Equal(t, "user-modify-playback-state", tok.Scope)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(base.Add(2*time.Hour)))

	_, err = s.GetToken(ctx, "u2", "spotify")
	assert.True(t, areaserrors.IsNotFound(err))
}
