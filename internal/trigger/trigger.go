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

// Package trigger decides, per active Area, whether its action has newly
// become true, and fires the Area when it has.
//
// Evaluators update Hook State before returning a Fire so that a repeated
// evaluation of the same occurrence does not fire again. The Firer then
// records the execution and dispatches the reaction.
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

// Fire is a positive evaluation.
type Fire struct {
	// TriggerData is stored on the execution and used for interpolation.
	TriggerData map[string]any

	// OccurrenceKey is the Hook State key written for this occurrence.
	OccurrenceKey string
}

// Evaluator decides whether an Area fires at now. A nil Fire with a nil
// error means "not this time". A *errors.ValidationError means the Area is
// misconfigured and should be skipped.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, area *store.Area, now time.Time) (*Fire, error)
}

// TokenSource yields access tokens for an Area owner's linked account.
type TokenSource interface {
	AccessToken(ctx context.Context, userID, service string) (string, error)
}

// Deps are shared by every evaluator.
type Deps struct {
	Params *params.Resolver
	States *hookstate.Store

	// Location is the wall clock timers compare against. Defaults to time.Local.
	Location *time.Location

	Logger *slog.Logger
}

func (d Deps) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// actionParams resolves the Area's action parameters.
func (d Deps) actionParams(ctx context.Context, area *store.Area) (params.Values, error) {
	return d.Params.Resolve(ctx, area.ID, area.ActionComponentID, nil)
}

// clock is an HH:MM wall-clock time.
type clock struct {
	hour, minute int
}

func (c clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, day.Location())
}

func (c clock) matches(t time.Time) bool {
	return t.Hour() == c.hour && t.Minute() == c.minute
}

// parseClock parses "HH:MM" (24h). "9:05" is accepted.
func parseClock(field, s string) (clock, error) {
	bad := &areaserrors.ValidationError{Field: field, Message: fmt.Sprintf("must be HH:MM, got %q", s)}
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return clock{}, bad
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return clock{}, bad
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || m < 0 || m > 59 {
		return clock{}, bad
	}
	return clock{hour: h, minute: m}, nil
}

// requiredClock reads and parses a required HH:MM parameter.
func requiredClock(p params.Values, name string) (clock, error) {
	raw, ok := p.Get(name)
	if !ok {
		return clock{}, &areaserrors.ValidationError{Field: name, Message: "is required"}
	}
	return parseClock(name, raw)
}

// baseTriggerData is the payload every timer fire carries.
func baseTriggerData(name string, local time.Time) map[string]any {
	return map[string]any{
		"trigger":      name,
		"triggered_at": local.Format(time.RFC3339),
		"date":         local.Format("2006-01-02"),
		"time":         local.Format("15:04"),
		"weekday":      local.Weekday().String(),
	}
}
