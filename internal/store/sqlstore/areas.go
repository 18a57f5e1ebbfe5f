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
	"time"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// CreateArea inserts an Area after checking its component kinds.
func (s *Store) CreateArea(ctx context.Context, area *store.Area) error {
	action, err := s.getComponent(ctx, s.db, area.ActionComponentID)
	if err != nil {
		return err
	}
	reaction, err := s.getComponent(ctx, s.db, area.ReactionComponentID)
	if err != nil {
		return err
	}
	if err := store.ValidateAreaComponents(action, reaction); err != nil {
		return err
	}

	if area.ID == "" {
		area.ID = store.NewID()
	}
	area.CreatedAt = store.OrNow(area.CreatedAt)
	area.UpdatedAt = area.CreatedAt

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO areas (id, user_id, action_component_id, reaction_component_id, name, description,
			is_active, triggered_count, last_triggered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		area.ID, area.UserID, area.ActionComponentID, area.ReactionComponentID, area.Name, area.Description,
		area.IsActive, area.TriggeredCount, nullMillis(area.LastTriggeredAt), millis(area.CreatedAt), millis(area.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create area: %w", err)
	}
	return nil
}

const areaSelect = `
	SELECT a.id, a.user_id, a.action_component_id, a.reaction_component_id, a.name, a.description,
		a.is_active, a.triggered_count, a.last_triggered_at, a.created_at, a.updated_at,
		ac.name, rc.name
	FROM areas a
	JOIN components ac ON ac.id = a.action_component_id
	JOIN components rc ON rc.id = a.reaction_component_id`

func scanArea(row scanner) (*store.Area, error) {
	var a store.Area
	var lastTriggered sql.NullInt64
	var created, updated int64
	if err := row.Scan(&a.ID, &a.UserID, &a.ActionComponentID, &a.ReactionComponentID, &a.Name, &a.Description,
		&a.IsActive, &a.TriggeredCount, &lastTriggered, &created, &updated,
		&a.ActionName, &a.ReactionName); err != nil {
		return nil, err
	}
	a.LastTriggeredAt = fromNullMillis(lastTriggered)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

// GetArea returns an Area by id.
func (s *Store) GetArea(ctx context.Context, id string) (*store.Area, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(areaSelect+` WHERE a.id = ?`), id)
	a, err := scanArea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "area", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get area: %w", err)
	}
	return a, nil
}

// ListActiveAreasByAction returns active Areas for an action name, oldest first.
func (s *Store) ListActiveAreasByAction(ctx context.Context, actionName string) ([]*store.Area, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(areaSelect+`
		WHERE a.is_active = ? AND ac.name = ?
		ORDER BY a.created_at, a.id`), true, actionName)
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	defer rows.Close()

	var out []*store.Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAreaActive toggles is_active.
func (s *Store) SetAreaActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE areas SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, millis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update area: %w", err)
	}
	return requireAffected(res, "area", id)
}

// RecordTrigger increments triggered_count and sets last_triggered_at.
func (s *Store) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE areas
		SET triggered_count = triggered_count + 1, last_triggered_at = ?, updated_at = ?
		WHERE id = ?`), millis(at), millis(at), id)
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}
	return requireAffected(res, "area", id)
}

// DeleteArea removes the Area with its parameters, hook states and
// executions in one transaction.
func (s *Store) DeleteArea(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"area_parameters", "hook_states", "area_executions"} {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM `+table+` WHERE area_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM areas WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete area: %w", err)
	}
	if err := requireAffected(res, "area", id); err != nil {
		return err
	}

	return tx.Commit()
}

// SetAreaParameter upserts a parameter value.
func (s *Store) SetAreaParameter(ctx context.Context, p *store.AreaParameter) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO area_parameters (area_id, variable_id, value, is_template)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (area_id, variable_id) DO UPDATE SET
			value = excluded.value,
			is_template = excluded.is_template`),
		p.AreaID, p.VariableID, p.Value, p.IsTemplate,
	)
	if err != nil {
		return fmt.Errorf("failed to set area parameter: %w", err)
	}
	return nil
}

// ListAreaParameters returns an Area's parameters ordered by variable name.
func (s *Store) ListAreaParameters(ctx context.Context, areaID string) ([]*store.AreaParameter, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT p.area_id, p.variable_id, p.value, p.is_template, v.name, v.component_id
		FROM area_parameters p
		JOIN variables v ON v.id = p.variable_id
		WHERE p.area_id = ?
		ORDER BY v.name`), areaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list area parameters: %w", err)
	}
	defer rows.Close()

	var out []*store.AreaParameter
	for rows.Next() {
		var p store.AreaParameter
		if err := rows.Scan(&p.AreaID, &p.VariableID, &p.Value, &p.IsTemplate, &p.VariableName, &p.ComponentID); err != nil {
			return nil, fmt.Errorf("failed to scan area parameter: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &areaserrors.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}
