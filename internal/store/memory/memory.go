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

// Package memory provides an in-memory store used by tests and the
// "memory" database driver.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Compile-time interface assertions.
var (
	_ store.CatalogStore   = (*Store)(nil)
	_ store.AreaStore      = (*Store)(nil)
	_ store.HookStateStore = (*Store)(nil)
	_ store.ExecutionStore = (*Store)(nil)
	_ store.TokenStore     = (*Store)(nil)
	_ store.Store          = (*Store)(nil)
)

type hookKey struct {
	areaID string
	key    string
}

type paramKey struct {
	areaID     string
	variableID string
}

type tokenKey struct {
	userID    string
	serviceID string
}

// Store is an in-memory store. A single mutex guards all maps, which also
// makes DeleteArea's cascade atomic.
type Store struct {
	mu         sync.RWMutex
	services   map[string]*store.Service
	components map[string]*store.Component
	variables  map[string]*store.Variable
	areas      map[string]*store.Area
	params     map[paramKey]*store.AreaParameter
	hookStates map[hookKey]*store.HookState
	executions map[string]*store.Execution
	tokens     map[tokenKey]*store.UserToken
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		services:   make(map[string]*store.Service),
		components: make(map[string]*store.Component),
		variables:  make(map[string]*store.Variable),
		areas:      make(map[string]*store.Area),
		params:     make(map[paramKey]*store.AreaParameter),
		hookStates: make(map[hookKey]*store.HookState),
		executions: make(map[string]*store.Execution),
		tokens:     make(map[tokenKey]*store.UserToken),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// CreateService inserts a Service; names are unique.
func (s *Store) CreateService(ctx context.Context, svc *store.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.services {
		if existing.Name == svc.Name {
			return fmt.Errorf("service already exists: %s", svc.Name)
		}
	}
	if svc.ID == "" {
		svc.ID = store.NewID()
	}
	svc.CreatedAt = store.OrNow(svc.CreatedAt)
	cp := *svc
	s.services[svc.ID] = &cp
	return nil
}

// GetServiceByName returns the Service with the given name.
func (s *Store) GetServiceByName(ctx context.Context, name string) (*store.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, svc := range s.services {
		if svc.Name == name {
			cp := *svc
			return &cp, nil
		}
	}
	return nil, &areaserrors.NotFoundError{Resource: "service", ID: name}
}

// ListServices returns all Services ordered by name.
func (s *Store) ListServices(ctx context.Context) ([]*store.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Service, 0, len(s.services))
	for _, svc := range s.services {
		cp := *svc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateComponent inserts a Component under an existing Service.
func (s *Store) CreateComponent(ctx context.Context, c *store.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[c.ServiceID]; !ok {
		return &areaserrors.NotFoundError{Resource: "service", ID: c.ServiceID}
	}
	for _, existing := range s.components {
		if existing.ServiceID == c.ServiceID && existing.Name == c.Name {
			return fmt.Errorf("component already exists: %s", c.Name)
		}
	}
	if c.ID == "" {
		c.ID = store.NewID()
	}
	c.CreatedAt = store.OrNow(c.CreatedAt)
	cp := *c
	s.components[c.ID] = &cp
	return nil
}

// GetComponent returns a Component by id.
func (s *Store) GetComponent(ctx context.Context, id string) (*store.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.components[id]
	if !ok {
		return nil, &areaserrors.NotFoundError{Resource: "component", ID: id}
	}
	cp := *c
	return &cp, nil
}

// GetComponentByName returns a Component by service and name.
func (s *Store) GetComponentByName(ctx context.Context, serviceID, name string) (*store.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.components {
		if c.ServiceID == serviceID && c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, &areaserrors.NotFoundError{Resource: "component", ID: name}
}

// ListComponents returns a Service's components ordered by name.
func (s *Store) ListComponents(ctx context.Context, serviceID string) ([]*store.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Component
	for _, c := range s.components {
		if c.ServiceID == serviceID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateVariable inserts a Variable under an existing Component.
func (s *Store) CreateVariable(ctx context.Context, v *store.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.components[v.ComponentID]; !ok {
		return &areaserrors.NotFoundError{Resource: "component", ID: v.ComponentID}
	}
	for _, existing := range s.variables {
		if existing.ComponentID == v.ComponentID && existing.Name == v.Name {
			return fmt.Errorf("variable already exists: %s", v.Name)
		}
	}
	if v.ID == "" {
		v.ID = store.NewID()
	}
	cp := *v
	s.variables[v.ID] = &cp
	return nil
}

// ListVariables returns a Component's variables ordered by name.
func (s *Store) ListVariables(ctx context.Context, componentID string) ([]*store.Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Variable
	for _, v := range s.variables {
		if v.ComponentID == componentID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateArea inserts an Area after checking its component kinds.
func (s *Store) CreateArea(ctx context.Context, area *store.Area) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.components[area.ActionComponentID]
	if !ok {
		return &areaserrors.NotFoundError{Resource: "component", ID: area.ActionComponentID}
	}
	reaction, ok := s.components[area.ReactionComponentID]
	if !ok {
		return &areaserrors.NotFoundError{Resource: "component", ID: area.ReactionComponentID}
	}
	if err := store.ValidateAreaComponents(action, reaction); err != nil {
		return err
	}

	if area.ID == "" {
		area.ID = store.NewID()
	}
	if _, exists := s.areas[area.ID]; exists {
		return fmt.Errorf("area already exists: %s", area.ID)
	}
	area.CreatedAt = store.OrNow(area.CreatedAt)
	area.UpdatedAt = area.CreatedAt
	cp := *area
	s.areas[area.ID] = &cp
	return nil
}

// GetArea returns an Area by id.
func (s *Store) GetArea(ctx context.Context, id string) (*store.Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.areas[id]
	if !ok {
		return nil, &areaserrors.NotFoundError{Resource: "area", ID: id}
	}
	return s.hydrateArea(a), nil
}

// ListActiveAreasByAction returns active Areas for an action name, oldest first.
func (s *Store) ListActiveAreasByAction(ctx context.Context, actionName string) ([]*store.Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Area
	for _, a := range s.areas {
		if !a.IsActive {
			continue
		}
		if c, ok := s.components[a.ActionComponentID]; !ok || c.Name != actionName {
			continue
		}
		out = append(out, s.hydrateArea(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// hydrateArea copies a and fills the component names. Callers hold the lock.
func (s *Store) hydrateArea(a *store.Area) *store.Area {
	cp := *a
	if c, ok := s.components[a.ActionComponentID]; ok {
		cp.ActionName = c.Name
	}
	if c, ok := s.components[a.ReactionComponentID]; ok {
		cp.ReactionName = c.Name
	}
	return &cp
}

// SetAreaActive toggles is_active.
func (s *Store) SetAreaActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.areas[id]
	if !ok {
		return &areaserrors.NotFoundError{Resource: "area", ID: id}
	}
	a.IsActive = active
	a.UpdatedAt = time.Now()
	return nil
}

// RecordTrigger increments the Area's trigger counter.
func (s *Store) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.areas[id]
	if !ok {
		return &areaserrors.NotFoundError{Resource: "area", ID: id}
	}
	a.TriggeredCount++
	t := at
	a.LastTriggeredAt = &t
	a.UpdatedAt = at
	return nil
}

// DeleteArea removes the Area and everything hanging off it.
func (s *Store) DeleteArea(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.areas[id]; !ok {
		return &areaserrors.NotFoundError{Resource: "area", ID: id}
	}
	for k := range s.params {
		if k.areaID == id {
			delete(s.params, k)
		}
	}
	for k := range s.hookStates {
		if k.areaID == id {
			delete(s.hookStates, k)
		}
	}
	for execID, e := range s.executions {
		if e.AreaID == id {
			delete(s.executions, execID)
		}
	}
	delete(s.areas, id)
	return nil
}

// SetAreaParameter upserts a parameter value.
func (s *Store) SetAreaParameter(ctx context.Context, p *store.AreaParameter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.areas[p.AreaID]; !ok {
		return &areaserrors.NotFoundError{Resource: "area", ID: p.AreaID}
	}
	if _, ok := s.variables[p.VariableID]; !ok {
		return &areaserrors.NotFoundError{Resource: "variable", ID: p.VariableID}
	}
	cp := *p
	cp.VariableName, cp.ComponentID = "", ""
	s.params[paramKey{p.AreaID, p.VariableID}] = &cp
	return nil
}

// ListAreaParameters returns an Area's parameters ordered by variable name.
func (s *Store) ListAreaParameters(ctx context.Context, areaID string) ([]*store.AreaParameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.AreaParameter
	for k, p := range s.params {
		if k.areaID != areaID {
			continue
		}
		cp := *p
		if v, ok := s.variables[p.VariableID]; ok {
			cp.VariableName = v.Name
			cp.ComponentID = v.ComponentID
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariableName < out[j].VariableName })
	return out, nil
}

// GetHookState returns one hook state.
func (s *Store) GetHookState(ctx context.Context, areaID, key string) (*store.HookState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hs, ok := s.hookStates[hookKey{areaID, key}]
	if !ok {
		return nil, &areaserrors.NotFoundError{Resource: "hook state", ID: areaID + "/" + key}
	}
	return copyHookState(hs), nil
}

// UpsertHookState inserts or overwrites a hook state, keeping created_at.
func (s *Store) UpsertHookState(ctx context.Context, hs *store.HookState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := store.OrNow(hs.UpdatedAt)
	k := hookKey{hs.AreaID, hs.StateKey}
	if existing, ok := s.hookStates[k]; ok {
		existing.StateValue = hs.StateValue
		existing.LastCheckedAt = copyTime(hs.LastCheckedAt)
		existing.UpdatedAt = now
		return nil
	}
	cp := copyHookState(hs)
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.hookStates[k] = cp
	return nil
}

// InsertHookStateIfAbsent inserts only when the key is new.
func (s *Store) InsertHookStateIfAbsent(ctx context.Context, hs *store.HookState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := hookKey{hs.AreaID, hs.StateKey}
	if _, ok := s.hookStates[k]; ok {
		return false, nil
	}
	now := store.OrNow(hs.UpdatedAt)
	cp := copyHookState(hs)
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.hookStates[k] = cp
	return true, nil
}

// ListHookStates returns matching hook states ordered by area and key.
func (s *Store) ListHookStates(ctx context.Context, f store.HookStateFilter) ([]*store.HookState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.HookState
	for _, hs := range s.hookStates {
		if f.AreaID != "" && hs.AreaID != f.AreaID {
			continue
		}
		if f.KeyPrefix != "" && !strings.HasPrefix(hs.StateKey, f.KeyPrefix) {
			continue
		}
		if f.NeverChecked && hs.LastCheckedAt != nil {
			continue
		}
		if f.CheckedSince != nil && (hs.LastCheckedAt == nil || hs.LastCheckedAt.Before(*f.CheckedSince)) {
			continue
		}
		out = append(out, copyHookState(hs))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AreaID != out[j].AreaID {
			return out[i].AreaID < out[j].AreaID
		}
		return out[i].StateKey < out[j].StateKey
	})
	return out, nil
}

// DeleteHookStatesBefore removes stale hook states under keyPrefix.
func (s *Store) DeleteHookStatesBefore(ctx context.Context, keyPrefix string, cutoff time.Time) (int64, error) {
	if keyPrefix == "" {
		return 0, fmt.Errorf("failed to delete hook states: empty key prefix")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, hs := range s.hookStates {
		if strings.HasPrefix(hs.StateKey, keyPrefix) && hs.UpdatedAt.Before(cutoff) {
			delete(s.hookStates, k)
			n++
		}
	}
	return n, nil
}

// CreateExecution inserts an execution.
func (s *Store) CreateExecution(ctx context.Context, exec *store.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.ID == "" {
		exec.ID = store.NewID()
	}
	if _, exists := s.executions[exec.ID]; exists {
		return fmt.Errorf("execution already exists: %s", exec.ID)
	}
	if _, ok := s.areas[exec.AreaID]; !ok {
		return &areaserrors.NotFoundError{Resource: "area", ID: exec.AreaID}
	}
	exec.CreatedAt = store.OrNow(exec.CreatedAt)
	s.executions[exec.ID] = copyExecution(exec)
	return nil
}

// GetExecution returns an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, &areaserrors.NotFoundError{Resource: "execution", ID: id}
	}
	return copyExecution(e), nil
}

// UpdateExecution replaces an execution if its stored status equals from.
func (s *Store) UpdateExecution(ctx context.Context, exec *store.Execution, from store.ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.executions[exec.ID]
	if !ok {
		return &areaserrors.NotFoundError{Resource: "execution", ID: exec.ID}
	}
	if current.Status != from {
		return &areaserrors.TransitionError{
			ExecutionID: exec.ID,
			From:        string(current.Status),
			To:          string(exec.Status),
		}
	}
	updated := copyExecution(exec)
	updated.CreatedAt = current.CreatedAt
	s.executions[exec.ID] = updated
	return nil
}

// ListExecutions returns executions newest first.
func (s *Store) ListExecutions(ctx context.Context, f store.ExecutionFilter) ([]*store.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Execution
	for _, e := range s.executions {
		if f.AreaID != "" && e.AreaID != f.AreaID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.StartedBefore != nil && !e.StartedAt.Before(*f.StartedBefore) {
			continue
		}
		out = append(out, copyExecution(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DeleteExecution removes an execution.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[id]; !ok {
		return &areaserrors.NotFoundError{Resource: "execution", ID: id}
	}
	delete(s.executions, id)
	return nil
}

// DeleteTerminalExecutionsBefore removes old terminal executions.
func (s *Store) DeleteTerminalExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.executions {
		if e.Status.IsTerminal() && e.CreatedAt.Before(cutoff) {
			delete(s.executions, id)
			n++
		}
	}
	return n, nil
}

// ExecutionStats aggregates executions.
func (s *Store) ExecutionStats(ctx context.Context, areaID string) (*store.ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.ExecutionStats{ByStatus: make(map[store.ExecutionStatus]int64)}
	var sum, n int64
	for _, e := range s.executions {
		if areaID != "" && e.AreaID != areaID {
			continue
		}
		stats.Total++
		stats.ByStatus[e.Status]++
		if e.Status == store.StatusSuccess && e.ExecutionTimeMs != nil {
			sum += *e.ExecutionTimeMs
			n++
		}
	}
	if n > 0 {
		stats.AvgExecutionTimeMs = float64(sum) / float64(n)
	}
	return stats, nil
}

// GetToken returns a user's token for a service name.
func (s *Store) GetToken(ctx context.Context, userID, serviceName string) (*store.UserToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, svc := range s.services {
		if svc.Name != serviceName {
			continue
		}
		if tok, ok := s.tokens[tokenKey{userID, svc.ID}]; ok {
			cp := *tok
			cp.ExpiresAt = copyTime(tok.ExpiresAt)
			return &cp, nil
		}
	}
	return nil, &areaserrors.NotFoundError{Resource: "token", ID: userID + "/" + serviceName}
}

// SaveToken upserts a token.
func (s *Store) SaveToken(ctx context.Context, tok *store.UserToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[tok.ServiceID]; !ok {
		return &areaserrors.NotFoundError{Resource: "service", ID: tok.ServiceID}
	}
	cp := *tok
	cp.ExpiresAt = copyTime(tok.ExpiresAt)
	cp.UpdatedAt = store.OrNow(tok.UpdatedAt)
	s.tokens[tokenKey{tok.UserID, tok.ServiceID}] = &cp
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyHookState(hs *store.HookState) *store.HookState {
	cp := *hs
	cp.LastCheckedAt = copyTime(hs.LastCheckedAt)
	return &cp
}

func copyExecution(e *store.Execution) *store.Execution {
	cp := *e
	cp.TriggerData = maps.Clone(e.TriggerData)
	cp.ExecutionResult = maps.Clone(e.ExecutionResult)
	cp.CompletedAt = copyTime(e.CompletedAt)
	if e.ExecutionTimeMs != nil {
		v := *e.ExecutionTimeMs
		cp.ExecutionTimeMs = &v
	}
	return &cp
}
