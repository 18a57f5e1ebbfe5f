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

package hookstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, store.Store, *fakeClock) {
	t.Helper()
	backend := memory.New()
	clock := &fakeClock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	return New(Config{States: backend, Now: clock.Now}), backend, clock
}

func TestGet_Absent(t *testing.T) {
	hs, _, _ := newTestStore(t)

	v, found, err := hs.Get(context.Background(), "area", "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, v)
}

func TestSet_Idempotent(t *testing.T) {
	hs, backend, _ := newTestStore(t)
	ctx := context.Background()
	area := storetest.SeedArea(t, backend, storetest.AreaOptions{})

	require.NoError(t, hs.Set(ctx, area.ID, "cursor", "abc"))
	require.NoError(t, hs.Set(ctx, area.ID, "cursor", "abc"))

	v, found, err := hs.Get(ctx, area.ID, "cursor")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", v)

	all, err := hs.ListByArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSet_Overwrites(t *testing.T) {
	hs, backend, clock := newTestStore(t)
	ctx := context.Background()
	area := storetest.SeedArea(t, backend, storetest.AreaOptions{})

	require.NoError(t, hs.Set(ctx, area.ID, "cursor", "one"))
	clock.Advance(time.Minute)
	require.NoError(t, hs.Set(ctx, area.ID, "cursor", "two"))

	got, err := backend.GetHookState(ctx, area.ID, "cursor")
	require.NoError(t, err)
	assert.Equal(t, "two", got.StateValue)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, got.LastCheckedAt.Equal(clock.Now()))
}

func TestClaim_OnlyFirstWins(t *testing.T) {
	hs, backend, clock := newTestStore(t)
	ctx := context.Background()
	area := storetest.SeedArea(t, backend, storetest.AreaOptions{})
	key := DailyTimerKey(area.ID, clock.Now())

	claimed, err := hs.Claim(ctx, area.ID, key, FiredMarker)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = hs.Claim(ctx, area.ID, key, FiredMarker)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestIntrospection(t *testing.T) {
	hs, backend, clock := newTestStore(t)
	ctx := context.Background()
	area := storetest.SeedArea(t, backend, storetest.AreaOptions{})

	require.NoError(t, hs.SetChecked(ctx, area.ID, GmailCursorKey(area.ID), "m1", clock.Now().Add(-2*time.Hour)))
	require.NoError(t, hs.Set(ctx, area.ID, RedditHotPostKey(area.ID, "Golang"), "p1"))
	require.NoError(t, backend.UpsertHookState(ctx, &store.HookState{AreaID: area.ID, StateKey: RepositoryKey, StateValue: "octo/repo"}))

	recent, err := hs.RecentlyChecked(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "reddit_hot_post_"+area.ID+"_golang", recent[0].StateKey)

	never, err := hs.NeverChecked(ctx)
	require.NoError(t, err)
	require.Len(t, never, 1)
	assert.Equal(t, RepositoryKey, never[0].StateKey)

	byPrefix, err := hs.ListByPrefix(ctx, "gmail_")
	require.NoError(t, err)
	assert.Len(t, byPrefix, 1)
}

func TestCleanup(t *testing.T) {
	hs, backend, clock := newTestStore(t)
	ctx := context.Background()
	area := storetest.SeedArea(t, backend, storetest.AreaOptions{})

	start := clock.Now()
	old := []string{
		DailyTimerKey(area.ID, start),
		WeeklyTimerKey(area.ID, start),
		MonthlyTimerKey(area.ID, start),
	}
	for _, key := range old {
		_, err := hs.Claim(ctx, area.ID, key, FiredMarker)
		require.NoError(t, err)
	}
	kept := []string{
		RepositoryKey,
		IntervalTimerKey(area.ID),
		GmailCursorKey(area.ID),
		TwitchLiveKey(area.ID, "ninja"),
	}
	for _, key := range kept {
		require.NoError(t, hs.Set(ctx, area.ID, key, "x"))
	}

	clock.Advance(31 * 24 * time.Hour)
	fresh := DailyTimerKey(area.ID, clock.Now())
	_, err := hs.Claim(ctx, area.ID, fresh, FiredMarker)
	require.NoError(t, err)

	n, err := hs.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(len(old)), n)

	for _, key := range old {
		_, found, err := hs.Get(ctx, area.ID, key)
		require.NoError(t, err)
		assert.False(t, found, key)
	}
	for _, key := range append(kept, fresh) {
		_, found, err := hs.Get(ctx, area.ID, key)
		require.NoError(t, err)
		assert.True(t, found, key)
	}
}

func TestKeys(t *testing.T) {
	day := time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "daily_timer_a1_2025-01-31", DailyTimerKey("a1", day))
	assert.Equal(t, "weekly_timer_a1_2025-01-31", WeeklyTimerKey("a1", day))
	assert.Equal(t, "monthly_timer_a1_2025-01-31", MonthlyTimerKey("a1", day))
	assert.Equal(t, "interval_timer_a1", IntervalTimerKey("a1"))
	assert.Equal(t, "twitch_stream_live_a1_ninja", TwitchLiveKey("a1", "Ninja"))
}
