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

package store

import "time"

// ComponentKind distinguishes triggers from side effects.
type ComponentKind string

const (
	KindAction   ComponentKind = "action"
	KindReaction ComponentKind = "reaction"
)

// VariableKind distinguishes inputs from outputs of a component.
type VariableKind string

const (
	VariableParameter VariableKind = "parameter"
	VariableReturn    VariableKind = "return"
)

// Service is an external platform a user can link.
type Service struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	DisplayName  string    `json:"display_name" yaml:"display_name"`
	RequiresAuth bool      `json:"requires_auth" yaml:"requires_auth"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

// Component is an action or reaction offered by a Service.
type Component struct {
	ID          string        `json:"id"`
	ServiceID   string        `json:"service_id"`
	Name        string        `json:"name"`
	Kind        ComponentKind `json:"kind"`
	Description string        `json:"description,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Variable declares a parameter or return value of a Component.
type Variable struct {
	ID           string       `json:"id"`
	ComponentID  string       `json:"component_id"`
	Name         string       `json:"name"`
	Kind         VariableKind `json:"kind"`
	Required     bool         `json:"required"`
	DefaultValue *string      `json:"default_value,omitempty"`
	Description  string       `json:"description,omitempty"`
}

// Area binds one action component to one reaction component for a user.
type Area struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	ActionComponentID   string     `json:"action_component_id"`
	ReactionComponentID string     `json:"reaction_component_id"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	IsActive            bool       `json:"is_active"`
	TriggeredCount      int64      `json:"triggered_count"`
	LastTriggeredAt     *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// Populated on reads from the component rows.
	ActionName   string `json:"action_name,omitempty"`
	ReactionName string `json:"reaction_name,omitempty"`
}

// AreaParameter is a user-supplied value for a Variable on an Area.
type AreaParameter struct {
	AreaID     string `json:"area_id"`
	VariableID string `json:"variable_id"`
	Value      string `json:"value"`
	IsTemplate bool   `json:"is_template"`

	// Populated on reads.
	VariableName string `json:"variable_name,omitempty"`
	ComponentID  string `json:"component_id,omitempty"`
}

// HookState is one key/value of per-Area trigger state.
type HookState struct {
	AreaID        string     `json:"area_id"`
	StateKey      string     `json:"state_key"`
	StateValue    string     `json:"state_value"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HookStateFilter narrows ListHookStates. Zero fields do not filter.
type HookStateFilter struct {
	AreaID       string
	KeyPrefix    string
	CheckedSince *time.Time
	NeverChecked bool
}

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusSuccess   ExecutionStatus = "SUCCESS"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []ExecutionStatus{StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled}

// Execution is one attempt to run an Area's reaction.
type Execution struct {
	ID              string          `json:"id"`
	AreaID          string          `json:"area_id"`
	Status          ExecutionStatus `json:"status"`
	TriggerData     map[string]any  `json:"trigger_data,omitempty"`
	ExecutionResult map[string]any  `json:"execution_result,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ExecutionTimeMs *int64          `json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ExecutionFilter narrows ListExecutions. Zero fields do not filter.
type ExecutionFilter struct {
	AreaID        string
	Status        ExecutionStatus
	StartedBefore *time.Time
	Limit         int
	Offset        int
}

// ExecutionStats aggregates executions.
type ExecutionStats struct {
	Total    int64                     `json:"total"`
	ByStatus map[ExecutionStatus]int64 `json:"by_status"`

	// AvgExecutionTimeMs averages execution_time_ms over SUCCESS rows.
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}

// UserToken is a user's OAuth credential for a Service.
type UserToken struct {
	UserID       string     `json:"user_id"`
	ServiceID    string     `json:"service_id"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
