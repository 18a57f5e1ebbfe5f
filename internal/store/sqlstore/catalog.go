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

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// CreateService inserts a Service.
func (s *Store) CreateService(ctx context.Context, svc *store.Service) error {
	if svc.ID == "" {
		svc.ID = store.NewID()
	}
	svc.CreatedAt = store.OrNow(svc.CreatedAt)

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO services (id, name, display_name, requires_auth, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		svc.ID, svc.Name, svc.DisplayName, svc.RequiresAuth, millis(svc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

const serviceColumns = `id, name, display_name, requires_auth, created_at`

func scanService(row scanner) (*store.Service, error) {
	var svc store.Service
	var created int64
	if err := row.Scan(&svc.ID, &svc.Name, &svc.DisplayName, &svc.RequiresAuth, &created); err != nil {
		return nil, err
	}
	svc.CreatedAt = fromMillis(created)
	return &svc, nil
}

// GetServiceByName returns a Service by name.
func (s *Store) GetServiceByName(ctx context.Context, name string) (*store.Service, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+serviceColumns+` FROM services WHERE name = ?`), name)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "service", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return svc, nil
}

// ListServices returns all Services ordered by name.
func (s *Store) ListServices(ctx context.Context) ([]*store.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*store.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// CreateComponent inserts a Component.
func (s *Store) CreateComponent(ctx context.Context, c *store.Component) error {
	if c.ID == "" {
		c.ID = store.NewID()
	}
	c.CreatedAt = store.OrNow(c.CreatedAt)

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO components (id, service_id, name, kind, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.ServiceID, c.Name, string(c.Kind), c.Description, millis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create component: %w", err)
	}
	return nil
}

const componentColumns = `id, service_id, name, kind, description, created_at`

func scanComponent(row scanner) (*store.Component, error) {
	var c store.Component
	var kind string
	var created int64
	if err := row.Scan(&c.ID, &c.ServiceID, &c.Name, &kind, &c.Description, &created); err != nil {
		return nil, err
	}
	c.Kind = store.ComponentKind(kind)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// GetComponent returns a Component by id.
func (s *Store) GetComponent(ctx context.Context, id string) (*store.Component, error) {
	return s.getComponent(ctx, s.db, id)
}

func (s *Store) getComponent(ctx context.Context, q queryer, id string) (*store.Component, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+componentColumns+` FROM components WHERE id = ?`), id)
	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "component", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component: %w", err)
	}
	return c, nil
}

// GetComponentByName returns a Component by service and name.
func (s *Store) GetComponentByName(ctx context.Context, serviceID, name string) (*store.Component, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+componentColumns+` FROM components WHERE service_id = ? AND name = ?`), serviceID, name)
	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "component", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component: %w", err)
	}
	return c, nil
}

// ListComponents returns a Service's components ordered by name.
func (s *Store) ListComponents(ctx context.Context, serviceID string) ([]*store.Component, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+componentColumns+` FROM components WHERE service_id = ? ORDER BY name`), serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	defer rows.Close()

	var out []*store.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateVariable inserts a Variable.
func (s *Store) CreateVariable(ctx context.Context, v *store.Variable) error {
	if v.ID == "" {
		v.ID = store.NewID()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO variables (id, component_id, name, kind, required, default_value, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.ComponentID, v.Name, string(v.Kind), v.Required, nullString(v.DefaultValue), v.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create variable: %w", err)
	}
	return nil
}

// ListVariables returns a Component's variables ordered by name.
func (s *Store) ListVariables(ctx context.Context, componentID string) ([]*store.Variable, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, component_id, name, kind, required, default_value, description
		FROM variables WHERE component_id = ? ORDER BY name`), componentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	defer rows.Close()

	var out []*store.Variable
	for rows.Next() {
		var v store.Variable
		var kind string
		var def sql.NullString
		if err := rows.Scan(&v.ID, &v.ComponentID, &v.Name, &kind, &v.Required, &def, &v.Description); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}
		v.Kind = store.VariableKind(kind)
		if def.Valid {
			d := def.String
			v.DefaultValue = &d
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
