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
	"strconv"
	"strings"
	"time"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/params"
	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Timer action names.
const (
	DailyTimer    = "daily_timer"
	WeeklyTimer   = "weekly_timer"
	MonthlyTimer  = "monthly_timer"
	IntervalTimer = "interval_timer"
)

// fixedTimer fires once per matching calendar day at a configured time.
// The per-day occurrence key is claimed atomically, so only one of several
// evaluations within the same minute fires.
type fixedTimer struct {
	deps Deps
	name string
	key  func(areaID string, day time.Time) string

	// dayMatches reports whether local's calendar day is selected.
	dayMatches func(p params.Values, local time.Time) (bool, error)

	// extra adds fields to the trigger data.
	extra func(local time.Time, data map[string]any)
}

func (t *fixedTimer) Name() string { return t.name }

func (t *fixedTimer) Evaluate(ctx context.Context, area *store.Area, now time.Time) (*Fire, error) {
	p, err := t.deps.actionParams(ctx, area)
	if err != nil {
		return nil, err
	}
	at, err := requiredClock(p, "time")
	if err != nil {
		return nil, err
	}

	local := now.In(t.deps.location())
	if t.dayMatches != nil {
		ok, err := t.dayMatches(p, local)
		if err != nil || !ok {
			return nil, err
		}
	}
	if !at.matches(local) {
		return nil, nil
	}

	key := t.key(area.ID, local)
	claimed, err := t.deps.States.Claim(ctx, area.ID, key, hookstate.FiredMarker)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		return nil, nil
	}

	data := baseTriggerData(t.name, local)
	data["scheduled_time"] = at.String()
	if t.extra != nil {
		t.extra(local, data)
	}
	return &Fire{TriggerData: data, OccurrenceKey: key}, nil
}

// NewDailyTimer fires every day at parameter "time".
func NewDailyTimer(deps Deps) Evaluator {
	return &fixedTimer{deps: deps, name: DailyTimer, key: hookstate.DailyTimerKey}
}

// NewWeeklyTimer fires at "time" on the weekdays listed in "days_of_week".
func NewWeeklyTimer(deps Deps) Evaluator {
	return &fixedTimer{
		deps: deps,
		name: WeeklyTimer,
		key:  hookstate.WeeklyTimerKey,
		dayMatches: func(p params.Values, local time.Time) (bool, error) {
			days, err := parseWeekdays(p.List("days_of_week"))
			if err != nil {
				return false, err
			}
			return days[local.Weekday()], nil
		},
	}
}

// NewMonthlyTimer fires at "time" on the days listed in "days_of_month".
// The literal "last" selects the final day of any month.
func NewMonthlyTimer(deps Deps) Evaluator {
	return &fixedTimer{
		deps: deps,
		name: MonthlyTimer,
		key:  hookstate.MonthlyTimerKey,
		dayMatches: func(p params.Values, local time.Time) (bool, error) {
			return matchesDayOfMonth(p.List("days_of_month"), local)
		},
		extra: func(local time.Time, data map[string]any) {
			data["day_of_month"] = local.Day()
			data["is_last_day"] = isLastDayOfMonth(local)
		},
	}
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekdays(names []string) (map[time.Weekday]bool, error) {
	if len(names) == 0 {
		return nil, &areaserrors.ValidationError{Field: "days_of_week", Message: "is required"}
	}
	out := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		d, ok := weekdays[strings.ToLower(n)]
		if !ok {
			return nil, &areaserrors.ValidationError{Field: "days_of_week", Message: fmt.Sprintf("unknown weekday %q", n)}
		}
		out[d] = true
	}
	return out, nil
}

// isLastDayOfMonth reports whether tomorrow is the 1st.
func isLastDayOfMonth(local time.Time) bool {
	return local.AddDate(0, 0, 1).Day() == 1
}

func matchesDayOfMonth(entries []string, local time.Time) (bool, error) {
	if len(entries) == 0 {
		return false, &areaserrors.ValidationError{Field: "days_of_month", Message: "is required"}
	}
	matched := false
	for _, e := range entries {
		if strings.EqualFold(e, "last") {
			if isLastDayOfMonth(local) {
				matched = true
			}
			continue
		}
		n, err := strconv.Atoi(e)
		if err != nil || n < 1 || n > 31 {
			return false, &areaserrors.ValidationError{Field: "days_of_month", Message: fmt.Sprintf("invalid day %q", e)}
		}
		if local.Day() == n {
			matched = true
		}
	}
	return matched, nil
}

// intervalTimer fires every interval from start_time onwards each day.
// The next fire is measured from the previous actual fire, so late ticks
// push every later fire back rather than catching up.
type intervalTimer struct {
	deps Deps
}

// NewIntervalTimer fires repeatedly at a fixed interval.
func NewIntervalTimer(deps Deps) Evaluator {
	return &intervalTimer{deps: deps}
}

func (t *intervalTimer) Name() string { return IntervalTimer }

func (t *intervalTimer) Evaluate(ctx context.Context, area *store.Area, now time.Time) (*Fire, error) {
	p, err := t.deps.actionParams(ctx, area)
	if err != nil {
		return nil, err
	}
	interval, err := parseInterval(p)
	if err != nil {
		return nil, err
	}
	start := clock{}
	if raw, ok := p.Get("start_time"); ok {
		if start, err = parseClock("start_time", raw); err != nil {
			return nil, err
		}
	}

	local := now.In(t.deps.location())
	todayStart := start.on(local)
	if local.Before(todayStart) {
		return nil, nil
	}

	key := hookstate.IntervalTimerKey(area.ID)
	next := todayStart
	last, found, err := t.deps.States.Get(ctx, area.ID, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if found {
		prev, perr := time.Parse(time.RFC3339, last)
		if perr != nil {
			t.deps.logger().Warn("ignoring unparseable interval marker",
				slog.String("area_id", area.ID),
				slog.String("value", last))
		} else {
			next = prev.Add(interval)
		}
	}
	if now.Before(next) {
		return nil, nil
	}

	if err := t.deps.States.Set(ctx, area.ID, key, now.UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}

	data := baseTriggerData(IntervalTimer, local)
	data["interval_minutes"] = int(interval / time.Minute)
	if found {
		data["previous_trigger"] = last
	}
	return &Fire{TriggerData: data, OccurrenceKey: key}, nil
}

// parseInterval reads interval_unit + interval_value, or the legacy
// interval_minutes.
func parseInterval(p params.Values) (time.Duration, error) {
	if unit, ok := p.Get("interval_unit"); ok {
		n, err := p.Int("interval_value")
		if err != nil {
			return 0, err
		}
		switch strings.ToLower(unit) {
		case "minutes":
			return time.Duration(n) * time.Minute, nil
		case "hours":
			return time.Duration(n) * time.Hour, nil
		case "days":
			return time.Duration(n) * 24 * time.Hour, nil
		default:
			return 0, &areaserrors.ValidationError{Field: "interval_unit", Message: fmt.Sprintf("must be minutes, hours or days, got %q", unit)}
		}
	}
	if _, ok := p.Get("interval_minutes"); ok {
		n, err := p.Int("interval_minutes")
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Minute, nil
	}
	return 0, &areaserrors.ValidationError{Field: "interval_value", Message: "interval_unit and interval_value (or interval_minutes) are required"}
}
