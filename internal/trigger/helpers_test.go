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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/params"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
)

type testEnv struct {
	store  store.Store
	states *hookstate.Store
	deps   Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := memory.New()
	t.Cleanup(func() { backend.Close() })

	states := hookstate.New(hookstate.Config{States: backend})
	return &testEnv{
		store:  backend,
		states: states,
		deps: Deps{
			Params:   params.NewResolver(backend),
			States:   states,
			Location: time.UTC,
		},
	}
}

func (e *testEnv) area(t *testing.T, action string, actionParams map[string]string) *store.Area {
	t.Helper()
	return storetest.SeedArea(t, e.store, storetest.AreaOptions{Action: action, ActionParams: actionParams})
}

// fakeTokens hands out a fixed token and records lookups.
type fakeTokens struct {
	token string
	err   error
	calls []string
}

func (f *fakeTokens) AccessToken(_ context.Context, userID, service string) (string, error) {
	f.calls = append(f.calls, userID+"/"+service)
	return f.token, f.err
}

func at(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

func requireFire(t *testing.T, ev Evaluator, area *store.Area, now time.Time) *Fire {
	t.Helper()
	fire, err := ev.Evaluate(context.Background(), area, now)
	require.NoError(t, err)
	require.NotNil(t, fire, "expected a fire at %s", now)
	return fire
}

func requireNoFire(t *testing.T, ev Evaluator, area *store.Area, now time.Time) {
	t.Helper()
	fire, err := ev.Evaluate(context.Background(), area, now)
	require.NoError(t, err)
	require.Nil(t, fire, "unexpected fire at %s", now)
}
