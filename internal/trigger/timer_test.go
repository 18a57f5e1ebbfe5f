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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/hookstate"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

func TestDailyTimer_FiresOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	ev := NewDailyTimer(env.deps)
	area := env.area(t, DailyTimer, map[string]string{"time": "09:00"})

	requireNoFire(t, ev, area, at(2025, 6, 2, 8, 59, 0))

	fire := requireFire(t, ev, area, at(2025, 6, 2, 9, 0, 5))
	assert.Equal(t, DailyTimer, fire.TriggerData["trigger"])
	assert.Equal(t, "2025-06-02", fire.TriggerData["date"])
	assert.Equal(t, "09:00", fire.TriggerData["scheduled_time"])
	assert.Equal(t, "daily_timer_"+area.ID+"_2025-06-02", fire.OccurrenceKey)

	// Same minute, second tick.
	requireNoFire(t, ev, area, at(2025, 6, 2, 9, 0, 45))
	requireNoFire(t, ev, area, at(2025, 6, 2, 9, 1, 0))

	requireFire(t, ev, area, at(2025, 6, 3, 9, 0, 0))

	v, found, err := env.states.Get(context.Background(), area.ID, hookstate.DailyTimerKey(area.ID, at(2025, 6, 3, 0, 0, 0)))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, hookstate.FiredMarker, v)
}

func TestDailyTimer_UsesLocation(t *testing.T) {
	env := newTestEnv(t)
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	env.deps.Location = paris
	ev := NewDailyTimer(env.deps)
	area := env.area(t, DailyTimer, map[string]string{"time": "09:00"})

	// 07:00 UTC is 09:00 in Paris during summer time.
	requireNoFire(t, ev, area, at(2025, 6, 2, 9, 0, 0))
	requireFire(t, ev, area, at(2025, 6, 2, 7, 0, 0))
}

func TestDailyTimer_InvalidTime(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing", nil},
		{"garbage", map[string]string{"time": "noon"}},
		{"hour out of range", map[string]string{"time": "24:00"}},
		{"one digit minute", map[string]string{"time": "9:5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			area := env.area(t, DailyTimer, tt.params)

			fire, err := NewDailyTimer(env.deps).Evaluate(context.Background(), area, at(2025, 6, 2, 9, 0, 0))
			assert.Nil(t, fire)
			assert.True(t, areaserrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestWeeklyTimer(t *testing.T) {
	env := newTestEnv(t)
	ev := NewWeeklyTimer(env.deps)
	area := env.area(t, WeeklyTimer, map[string]string{"time": "18:30", "days_of_week": " Monday, wed "})

	// 2025-06-02 is a Monday.
	requireFire(t, ev, area, at(2025, 6, 2, 18, 30, 0))
	requireNoFire(t, ev, area, at(2025, 6, 2, 18, 30, 30))
	requireNoFire(t, ev, area, at(2025, 6, 3, 18, 30, 0))
	requireFire(t, ev, area, at(2025, 6, 4, 18, 30, 0))
	requireNoFire(t, ev, area, at(2025, 6, 5, 18, 30, 0))
}

func TestWeeklyTimer_UnknownDay(t *testing.T) {
	env := newTestEnv(t)
	area := env.area(t, WeeklyTimer, map[string]string{"time": "18:30", "days_of_week": "mon,funday"})

	_, err := NewWeeklyTimer(env.deps).Evaluate(context.Background(), area, at(2025, 6, 2, 18, 30, 0))
	assert.True(t, areaserrors.IsValidation(err))
	assert.ErrorContains(t, err, "funday")
}

func TestMonthlyTimer_Days(t *testing.T) {
	env := newTestEnv(t)
	ev := NewMonthlyTimer(env.deps)
	area := env.area(t, MonthlyTimer, map[string]string{"time": "08:00", "days_of_month": "1,15"})

	fire := requireFire(t, ev, area, at(2025, 6, 1, 8, 0, 0))
	assert.Equal(t, 1, fire.TriggerData["day_of_month"])
	requireNoFire(t, ev, area, at(2025, 6, 2, 8, 0, 0))
	requireFire(t, ev, area, at(2025, 6, 15, 8, 0, 0))
}

func TestMonthlyTimer_LastDay(t *testing.T) {
	tests := []struct {
		name    string
		last    time.Time
		notLast time.Time
	}{
		{"28-day month", at(2025, 2, 28, 8, 0, 0), at(2025, 2, 27, 8, 0, 0)},
		{"29-day month", at(2024, 2, 29, 8, 0, 0), at(2024, 2, 28, 8, 0, 0)},
		{"30-day month", at(2025, 4, 30, 8, 0, 0), at(2025, 4, 29, 8, 0, 0)},
		{"31-day month", at(2025, 1, 31, 8, 0, 0), at(2025, 1, 30, 8, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ev := NewMonthlyTimer(env.deps)
			area := env.area(t, MonthlyTimer, map[string]string{"time": "08:00", "days_of_month": "last"})

			requireNoFire(t, ev, area, tt.notLast)
			fire := requireFire(t, ev, area, tt.last)
			assert.Equal(t, true, fire.TriggerData["is_last_day"])
		})
	}
}

func TestMonthlyTimer_InvalidDay(t *testing.T) {
	env := newTestEnv(t)
	area := env.area(t, MonthlyTimer, map[string]string{"time": "08:00", "days_of_month": "32"})

	_, err := NewMonthlyTimer(env.deps).Evaluate(context.Background(), area, at(2025, 6, 1, 8, 0, 0))
	assert.True(t, areaserrors.IsValidation(err))
}

func TestIntervalTimer_Cadence(t *testing.T) {
	env := newTestEnv(t)
	ev := NewIntervalTimer(env.deps)
	area := env.area(t, IntervalTimer, map[string]string{"interval_minutes": "30", "start_time": "09:00"})

	requireNoFire(t, ev, area, at(2025, 6, 2, 8, 59, 0))
	first := requireFire(t, ev, area, at(2025, 6, 2, 9, 0, 0))
	assert.NotContains(t, first.TriggerData, "previous_trigger")
	assert.Equal(t, 30, first.TriggerData["interval_minutes"])

	requireNoFire(t, ev, area, at(2025, 6, 2, 9, 15, 0))
	second := requireFire(t, ev, area, at(2025, 6, 2, 9, 30, 0))
	assert.Equal(t, "2025-06-02T09:00:00Z", second.TriggerData["previous_trigger"])
	requireNoFire(t, ev, area, at(2025, 6, 2, 9, 59, 0))
}

func TestIntervalTimer_DriftFollowsActualFire(t *testing.T) {
	env := newTestEnv(t)
	ev := NewIntervalTimer(env.deps)
	area := env.area(t, IntervalTimer, map[string]string{"interval_unit": "hours", "interval_value": "1"})

	requireFire(t, ev, area, at(2025, 6, 2, 0, 0, 0))
	// A late tick moves every later fire.
	requireFire(t, ev, area, at(2025, 6, 2, 1, 7, 0))
	requireNoFire(t, ev, area, at(2025, 6, 2, 2, 0, 0))
	requireFire(t, ev, area, at(2025, 6, 2, 2, 7, 0))
}

func TestIntervalTimer_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing", nil},
		{"unknown unit", map[string]string{"interval_unit": "weeks", "interval_value": "1"}},
		{"zero value", map[string]string{"interval_unit": "minutes", "interval_value": "0"}},
		{"bad start", map[string]string{"interval_minutes": "5", "start_time": "25:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			area := env.area(t, IntervalTimer, tt.params)

			_, err := NewIntervalTimer(env.deps).Evaluate(context.Background(), area, at(2025, 6, 2, 9, 0, 0))
			assert.True(t, areaserrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestParseClock(t *testing.T) {
	c, err := parseClock("time", " 7:05 ")
	require.NoError(t, err)
	assert.Equal(t, "07:05", c.String())
}
