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

// Package hookstate tracks per-Area trigger markers: fired-occurrence keys,
// polling cursors and filters.
package hookstate

import (
	"context"
	"log/slog"
	"time"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Config contains Store dependencies.
type Config struct {
	States store.HookStateStore

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Store is the Hook State service used by trigger evaluators.
type Store struct {
	states store.HookStateStore
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Store.
func New(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		states: cfg.States,
		now:    cfg.Now,
		logger: cfg.Logger.With(slog.String("component", "hookstate")),
	}
}

// Get returns the value stored under key, or found=false.
func (s *Store) Get(ctx context.Context, areaID, key string) (string, bool, error) {
	hs, err := s.states.GetHookState(ctx, areaID, key)
	if err != nil {
		if areaserrors.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return hs.StateValue, true, nil
}

// Set upserts key with last_checked_at = now.
func (s *Store) Set(ctx context.Context, areaID, key, value string) error {
	return s.SetChecked(ctx, areaID, key, value, s.now())
}

// SetChecked upserts key with an explicit last_checked_at.
func (s *Store) SetChecked(ctx context.Context, areaID, key, value string, checkedAt time.Time) error {
	checked := checkedAt.UTC()
	return s.states.UpsertHookState(ctx, &store.HookState{
		AreaID:        areaID,
		StateKey:      key,
		StateValue:    value,
		LastCheckedAt: &checked,
		UpdatedAt:     s.now().UTC(),
	})
}

// Claim inserts key only if no row exists and reports whether this caller
// won. A true result is the fire gate for occurrence keys.
func (s *Store) Claim(ctx context.Context, areaID, key, value string) (bool, error) {
	now := s.now().UTC()
	claimed, err := s.states.InsertHookStateIfAbsent(ctx, &store.HookState{
		AreaID:        areaID,
		StateKey:      key,
		StateValue:    value,
		LastCheckedAt: &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return false, err
	}
	if !claimed {
		s.logger.Debug("occurrence already claimed",
			slog.String("area_id", areaID),
			slog.String("state_key", key))
	}
	return claimed, nil
}

// ListByArea returns every marker of one Area.
func (s *Store) ListByArea(ctx context.Context, areaID string) ([]*store.HookState, error) {
	return s.states.ListHookStates(ctx, store.HookStateFilter{AreaID: areaID})
}

// ListByPrefix returns markers whose key starts with prefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]*store.HookState, error) {
	return s.states.ListHookStates(ctx, store.HookStateFilter{KeyPrefix: prefix})
}

// RecentlyChecked returns markers checked within the given window.
func (s *Store) RecentlyChecked(ctx context.Context, within time.Duration) ([]*store.HookState, error) {
	since := s.now().Add(-within).UTC()
	return s.states.ListHookStates(ctx, store.HookStateFilter{CheckedSince: &since})
}

// NeverChecked returns markers with no last_checked_at.
func (s *Store) NeverChecked(ctx context.Context) ([]*store.HookState, error) {
	return s.states.ListHookStates(ctx, store.HookStateFilter{NeverChecked: true})
}

// Cleanup deletes dated occurrence keys not updated for olderThanDays days.
// Filters, interval last-fire times and polling cursors are never removed.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -olderThanDays).UTC()
	var n int64
	for _, prefix := range OccurrencePrefixes {
		deleted, err := s.states.DeleteHookStatesBefore(ctx, prefix, cutoff)
		if err != nil {
			return n, err
		}
		n += deleted
	}
	if n > 0 {
		s.logger.Info("removed stale hook states",
			slog.Int64("count", n),
			slog.Int("older_than_days", olderThanDays))
	}
	return n, nil
}
