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

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

const hookStateColumns = `area_id, state_key, state_value, last_checked_at, created_at, updated_at`

func scanHookState(row scanner) (*store.HookState, error) {
	var hs store.HookState
	var checked sql.NullInt64
	var created, updated int64
	if err := row.Scan(&hs.AreaID, &hs.StateKey, &hs.StateValue, &checked, &created, &updated); err != nil {
		return nil, err
	}
	hs.LastCheckedAt = fromNullMillis(checked)
	hs.CreatedAt = fromMillis(created)
	hs.UpdatedAt = fromMillis(updated)
	return &hs, nil
}

// GetHookState returns one hook state.
func (s *Store) GetHookState(ctx context.Context, areaID, key string) (*store.HookState, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+hookStateColumns+` FROM hook_states WHERE area_id = ? AND state_key = ?`), areaID, key)
	hs, err := scanHookState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "hook state", ID: areaID + "/" + key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hook state: %w", err)
	}
	return hs, nil
}

// UpsertHookState inserts or overwrites a hook state, keeping created_at.
func (s *Store) UpsertHookState(ctx context.Context, hs *store.HookState) error {
	now := millis(store.OrNow(hs.UpdatedAt))
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO hook_states (area_id, state_key, state_value, last_checked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (area_id, state_key) DO UPDATE SET
			state_value = excluded.state_value,
			last_checked_at = excluded.last_checked_at,
			updated_at = excluded.updated_at`),
		hs.AreaID, hs.StateKey, hs.StateValue, nullMillis(hs.LastCheckedAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert hook state: %w", err)
	}
	return nil
}

// InsertHookStateIfAbsent inserts only when the key is new, relying on the
// (area_id, state_key) primary key for atomicity.
func (s *Store) InsertHookStateIfAbsent(ctx context.Context, hs *store.HookState) (bool, error) {
	now := millis(store.OrNow(hs.UpdatedAt))
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO hook_states (area_id, state_key, state_value, last_checked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (area_id, state_key) DO NOTHING`),
		hs.AreaID, hs.StateKey, hs.StateValue, nullMillis(hs.LastCheckedAt), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert hook state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ListHookStates returns matching hook states ordered by area and key.
func (s *Store) ListHookStates(ctx context.Context, f store.HookStateFilter) ([]*store.HookState, error) {
	var (
		where []string
		args  []any
	)
	if f.AreaID != "" {
		where = append(where, "area_id = ?")
		args = append(args, f.AreaID)
	}
	if f.KeyPrefix != "" {
		where = append(where, "substr(state_key, 1, ?) = ?")
		args = append(args, len(f.KeyPrefix), f.KeyPrefix)
	}
	if f.NeverChecked {
		where = append(where, "last_checked_at IS NULL")
	}
	if f.CheckedSince != nil {
		where = append(where, "last_checked_at >= ?")
		args = append(args, millis(*f.CheckedSince))
	}

	query := `SELECT ` + hookStateColumns + ` FROM hook_states`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY area_id, state_key"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hook states: %w", err)
	}
	defer rows.Close()

	var out []*store.HookState
	for rows.Next() {
		hs, err := scanHookState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hook state: %w", err)
		}
		out = append(out, hs)
	}
	return out, rows.Err()
}

// DeleteHookStatesBefore removes hook states under keyPrefix not updated since cutoff.
func (s *Store) DeleteHookStatesBefore(ctx context.Context, keyPrefix string, cutoff time.Time) (int64, error) {
	if keyPrefix == "" {
		return 0, fmt.Errorf("failed to delete hook states: empty key prefix")
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM hook_states WHERE substr(state_key, 1, ?) = ? AND updated_at < ?`),
		len(keyPrefix), keyPrefix, millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete hook states: %w", err)
	}
	return res.RowsAffected()
}
