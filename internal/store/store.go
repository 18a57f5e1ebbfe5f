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

// Package store defines the persistence contracts of the engine.
//
// # Interface Hierarchy
//
// Persistence is split by concern so components depend on the smallest
// surface they need:
//
//   - CatalogStore: Services, Components and Variables (read mostly, seeded)
//   - AreaStore: Areas, their parameters and trigger bookkeeping
//   - HookStateStore: per-Area trigger state used for deduplication
//   - ExecutionStore: the execution ledger rows
//   - TokenStore: OAuth tokens per user and service
//
// Store composes all of them plus io.Closer. Implementations live in the
// memory and sqlstore subpackages and share the storetest contract suite.
package store

import (
	"context"
	"io"
	"time"
)

// CatalogStore persists the static Service/Component/Variable catalog.
type CatalogStore interface {
	CreateService(ctx context.Context, svc *Service) error
	GetServiceByName(ctx context.Context, name string) (*Service, error)
	ListServices(ctx context.Context) ([]*Service, error)

	CreateComponent(ctx context.Context, c *Component) error
	GetComponent(ctx context.Context, id string) (*Component, error)
	// GetComponentByName finds a component by its service and name.
	GetComponentByName(ctx context.Context, serviceID, name string) (*Component, error)
	ListComponents(ctx context.Context, serviceID string) ([]*Component, error)

	CreateVariable(ctx context.Context, v *Variable) error
	ListVariables(ctx context.Context, componentID string) ([]*Variable, error)
}

// AreaStore persists Areas and their parameters.
type AreaStore interface {
	// CreateArea inserts an Area. The action component must be of kind
	// action and the reaction component of kind reaction.
	CreateArea(ctx context.Context, area *Area) error

	// GetArea returns an Area with ActionName and ReactionName populated.
	GetArea(ctx context.Context, id string) (*Area, error)

	// ListActiveAreasByAction returns active Areas whose action component
	// has the given name.
	ListActiveAreasByAction(ctx context.Context, actionName string) ([]*Area, error)

	// SetAreaActive toggles is_active.
	SetAreaActive(ctx context.Context, id string, active bool) error

	// RecordTrigger increments triggered_count and sets last_triggered_at.
	RecordTrigger(ctx context.Context, id string, at time.Time) error

	// DeleteArea removes the Area with its parameters, hook states and
	// executions in one transaction.
	DeleteArea(ctx context.Context, id string) error

	// SetAreaParameter upserts a parameter on (area_id, variable_id).
	SetAreaParameter(ctx context.Context, p *AreaParameter) error

	// ListAreaParameters returns the Area's parameters joined with the
	// variable name and owning component id.
	ListAreaParameters(ctx context.Context, areaID string) ([]*AreaParameter, error)
}

// HookStateStore persists trigger state keyed by (area_id, state_key).
type HookStateStore interface {
	// GetHookState returns a NotFoundError when the key is absent.
	GetHookState(ctx context.Context, areaID, key string) (*HookState, error)

	// UpsertHookState inserts or overwrites value and last_checked_at.
	UpsertHookState(ctx context.Context, hs *HookState) error

	// InsertHookStateIfAbsent inserts the row only when the key does not
	// exist yet and reports whether it did. It is atomic with respect to
	// concurrent callers.
	InsertHookStateIfAbsent(ctx context.Context, hs *HookState) (bool, error)

	ListHookStates(ctx context.Context, filter HookStateFilter) ([]*HookState, error)

	// DeleteHookStatesBefore removes rows whose key starts with keyPrefix
	// and that were not updated since cutoff. keyPrefix must not be empty.
	DeleteHookStatesBefore(ctx context.Context, keyPrefix string, cutoff time.Time) (int64, error)
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// UpdateExecution writes exec only if the stored status still equals
	// from. A mismatch yields a TransitionError carrying the stored status.
	UpdateExecution(ctx context.Context, exec *Execution, from ExecutionStatus) error

	// ListExecutions returns executions newest first.
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)
	DeleteExecution(ctx context.Context, id string) error

	// DeleteTerminalExecutionsBefore removes SUCCESS, FAILED and CANCELLED
	// executions created before cutoff.
	DeleteTerminalExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ExecutionStats aggregates over all executions, or one Area's when
	// areaID is non-empty.
	ExecutionStats(ctx context.Context, areaID string) (*ExecutionStats, error)
}

// TokenStore persists OAuth tokens.
type TokenStore interface {
	// GetToken looks a token up by user and service name.
	GetToken(ctx context.Context, userID, serviceName string) (*UserToken, error)

	// SaveToken upserts on (user_id, service_id).
	SaveToken(ctx context.Context, tok *UserToken) error
}

// Store is the full persistence interface.
type Store interface {
	CatalogStore
	AreaStore
	HookStateStore
	ExecutionStore
	TokenStore
	io.Closer
}
