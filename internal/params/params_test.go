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

package params

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

func TestInterpolate(t *testing.T) {
	vars := map[string]any{
		"author":  "octocat",
		"count":   float64(3),
		"private": false,
		"labels":  []any{"bug"},
		"when":    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"Push by {{author}}", "Push by octocat"},
		{"{{ author }} pushed {{count}} commits", "octocat pushed 3 commits"},
		{"private={{private}}", "private=false"},
		{"labels={{labels}}", `labels=["bug"]`},
		{"at {{when}}", "at 2025-01-02 03:04:05 +0000 UTC"},
		{"keep {{missing}}", "keep {{missing}}"},
		{"{{", "{{"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpolate(tt.in, vars), tt.in)
	}
}

func TestResolve_FiltersByComponentAndAppliesDefaults(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	area := storetest.SeedArea(t, s, storetest.AreaOptions{
		Action:         "daily_timer",
		Reaction:       "send_email",
		ActionParams:   map[string]string{"time": "09:00"},
		ReactionParams: map[string]string{"to": "x@y.com", "body": "Fired at {{time}}"},
	})

	def := "Hi"
	require.NoError(t, s.CreateVariable(ctx, &store.Variable{
		ComponentID: area.ReactionComponentID, Name: "subject", Kind: store.VariableParameter, DefaultValue: &def,
	}))

	r := NewResolver(s)
	vals, err := r.Resolve(ctx, area.ID, area.ReactionComponentID, map[string]any{"time": "09:00"})
	require.NoError(t, err)

	assert.Equal(t, Values{"to": "x@y.com", "body": "Fired at 09:00", "subject": "Hi"}, vals)

	action, err := r.Resolve(ctx, area.ID, area.ActionComponentID, nil)
	require.NoError(t, err)
	assert.Equal(t, Values{"time": "09:00"}, action)
}

func TestValues_Require(t *testing.T) {
	v := Values{"to": "x@y.com", "subject": "  "}

	assert.NoError(t, v.Require("to"))

	err := v.Require("to", "subject", "body")
	var ve *areaserrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "body,subject", ve.Field)
	assert.Contains(t, ve.Error(), "missing required parameter(s): body, subject")
}

func TestValues_Int(t *testing.T) {
	v := Values{"n": "30", "zero": "0", "bad": "x"}

	n, err := v.Int("n")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	for _, name := range []string{"zero", "bad", "missing"} {
		_, err := v.Int(name)
		assert.True(t, areaserrors.IsValidation(err), name)
	}
}

func TestValues_List(t *testing.T) {
	v := Values{"days": " Monday, wed ,, FRIDAY "}
	assert.Equal(t, []string{"Monday", "wed", "FRIDAY"}, v.List("days"))
	assert.Nil(t, v.List("missing"))
	assert.Equal(t, "fallback", v.String("missing", "fallback"))
}
