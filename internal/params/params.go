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

// Package params resolves an Area's configured parameter values for one of its
// components, filling declared defaults and substituting {{name}}
// placeholders from an execution's trigger data.
package params

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Source is the storage the resolver reads.
type Source interface {
	ListAreaParameters(ctx context.Context, areaID string) ([]*store.AreaParameter, error)
	ListVariables(ctx context.Context, componentID string) ([]*store.Variable, error)
}

// Resolver reads and interpolates Area parameters.
type Resolver struct {
	source Source
}

// NewResolver creates a Resolver.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the parameters bound to componentID on the Area. Values
// are interpolated against vars when vars is non-nil.
func (r *Resolver) Resolve(ctx context.Context, areaID, componentID string, vars map[string]any) (Values, error) {
	bound, err := r.source.ListAreaParameters(ctx, areaID)
	if err != nil {
		return nil, fmt.Errorf("list area parameters: %w", err)
	}

	out := Values{}

	decl, err := r.source.ListVariables(ctx, componentID)
	if err != nil {
		return nil, fmt.Errorf("list component variables: %w", err)
	}
	for _, v := range decl {
		if v.Kind == store.VariableParameter && v.DefaultValue != nil {
			out[v.Name] = *v.DefaultValue
		}
	}

	for _, p := range bound {
		if p.ComponentID != componentID {
			continue
		}
		out[p.VariableName] = p.Value
	}

	if vars != nil {
		for k, v := range out {
			out[k] = Interpolate(v, vars)
		}
	}
	return out, nil
}

// Interpolate replaces {{name}} placeholders with values from vars.
// Placeholders without a matching key are left as written.
func Interpolate(s string, vars map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			return m
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool, int, int64, int32:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Values maps variable name to resolved value.
type Values map[string]string

// Get returns a trimmed value and whether it is non-empty.
func (v Values) Get(name string) (string, bool) {
	s := strings.TrimSpace(v[name])
	return s, s != ""
}

// String returns the value or def when unset.
func (v Values) String(name, def string) string {
	if s, ok := v.Get(name); ok {
		return s
	}
	return def
}

// Require returns a ValidationError naming every missing parameter.
func (v Values) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := v.Get(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &areaserrors.ValidationError{
		Field:   strings.Join(missing, ","),
		Message: "missing required parameter(s): " + strings.Join(missing, ", "),
	}
}

// Int parses a positive integer parameter.
func (v Values) Int(name string) (int, error) {
	s, ok := v.Get(name)
	if !ok {
		return 0, &areaserrors.ValidationError{Field: name, Message: "is required"}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &areaserrors.ValidationError{Field: name, Message: fmt.Sprintf("must be a positive integer, got %q", s)}
	}
	return n, nil
}

// List splits a comma separated value, trimming blanks.
func (v Values) List(name string) []string {
	raw, ok := v.Get(name)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
