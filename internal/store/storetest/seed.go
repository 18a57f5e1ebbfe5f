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

// Package storetest holds the contract suite every store.Store
// implementation must pass, plus seeding helpers for other packages' tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// TestService is the service name SeedArea creates components under.
const TestService = "test"

// AreaOptions describes an Area to seed.
type AreaOptions struct {
	UserID         string
	Action         string
	Reaction       string
	ActionParams   map[string]string
	ReactionParams map[string]string
	Inactive       bool
}

// SeedArea creates (or reuses) the components named in opts and an active
// Area binding them, with the given parameter values.
func SeedArea(t testing.TB, s store.Store, opts AreaOptions) *store.Area {
	t.Helper()
	ctx := context.Background()

	if opts.UserID == "" {
		opts.UserID = "user-1"
	}
	if opts.Action == "" {
		opts.Action = "daily_timer"
	}
	if opts.Reaction == "" {
		opts.Reaction = "fake_email"
	}

	action := EnsureComponent(t, s, TestService, opts.Action, store.KindAction)
	reaction := EnsureComponent(t, s, TestService, opts.Reaction, store.KindReaction)

	area := &store.Area{
		UserID:              opts.UserID,
		ActionComponentID:   action.ID,
		ReactionComponentID: reaction.ID,
		Name:                opts.Action + " -> " + opts.Reaction,
		IsActive:            !opts.Inactive,
	}
	require.NoError(t, s.CreateArea(ctx, area))

	setParams(t, s, area.ID, action.ID, opts.ActionParams)
	setParams(t, s, area.ID, reaction.ID, opts.ReactionParams)

	got, err := s.GetArea(ctx, area.ID)
	require.NoError(t, err)
	return got
}

// EnsureService returns the named service, creating it when missing.
func EnsureService(t testing.TB, s store.Store, name string) *store.Service {
	t.Helper()
	ctx := context.Background()

	svc, err := s.GetServiceByName(ctx, name)
	if err == nil {
		return svc
	}
	require.True(t, areaserrors.IsNotFound(err), "unexpected error: %v", err)

	svc = &store.Service{Name: name, DisplayName: name}
	require.NoError(t, s.CreateService(ctx, svc))
	return svc
}

// EnsureComponent returns the named component, creating it when missing.
func EnsureComponent(t testing.TB, s store.Store, serviceName, name string, kind store.ComponentKind) *store.Component {
	t.Helper()
	ctx := context.Background()

	svc := EnsureService(t, s, serviceName)
	c, err := s.GetComponentByName(ctx, svc.ID, name)
	if err == nil {
		return c
	}
	require.True(t, areaserrors.IsNotFound(err), "unexpected error: %v", err)

	c = &store.Component{ServiceID: svc.ID, Name: name, Kind: kind}
	require.NoError(t, s.CreateComponent(ctx, c))
	return c
}

// EnsureVariable returns the component's parameter variable, creating it when missing.
func EnsureVariable(t testing.TB, s store.Store, componentID, name string) *store.Variable {
	t.Helper()
	ctx := context.Background()

	vars, err := s.ListVariables(ctx, componentID)
	require.NoError(t, err)
	for _, v := range vars {
		if v.Name == name {
			return v
		}
	}

	v := &store.Variable{ComponentID: componentID, Name: name, Kind: store.VariableParameter}
	require.NoError(t, s.CreateVariable(ctx, v))
	return v
}

// SetParam sets one parameter on an Area.
func SetParam(t testing.TB, s store.Store, areaID, componentID, name, value string) {
	t.Helper()
	v := EnsureVariable(t, s, componentID, name)
	require.NoError(t, s.SetAreaParameter(context.Background(), &store.AreaParameter{
		AreaID:     areaID,
		VariableID: v.ID,
		Value:      value,
	}))
}

func setParams(t testing.TB, s store.Store, areaID, componentID string, params map[string]string) {
	for name, value := range params {
		SetParam(t, s, areaID, componentID, name, value)
	}
}

// SaveToken links a token for the user on the named service.
func SaveToken(t testing.TB, s store.Store, userID, serviceName string, tok *store.UserToken) {
	t.Helper()
	svc := EnsureService(t, s, serviceName)
	tok.UserID = userID
	tok.ServiceID = svc.ID
	require.NoError(t, s.SaveToken(context.Background(), tok))
}
