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

// Package catalog loads the Service/Component/Variable catalog from YAML
// and applies it to a store.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is the YAML document.
type Catalog struct {
	Services []Service `yaml:"services"`
}

// Service is one external platform and what it offers.
type Service struct {
	Name         string      `yaml:"name"`
	DisplayName  string      `yaml:"display_name"`
	RequiresAuth bool        `yaml:"requires_auth"`
	Components   []Component `yaml:"components"`
}

// Component is an action or reaction.
type Component struct {
	Name        string              `yaml:"name"`
	Kind        store.ComponentKind `yaml:"kind"`
	Description string              `yaml:"description"`
	Variables   []Variable          `yaml:"variables"`
}

// Variable is a parameter (the default) or a return value.
type Variable struct {
	Name        string             `yaml:"name"`
	Kind        store.VariableKind `yaml:"kind"`
	Required    bool               `yaml:"required"`
	Default     *string            `yaml:"default"`
	Description string             `yaml:"description"`
}

// Summary counts rows created by Apply.
type Summary struct {
	Services   int `json:"services"`
	Components int `json:"components"`
	Variables  int `json:"variables"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks names, kinds and uniqueness, defaulting variable kinds
// to parameter.
func (c *Catalog) Validate() error {
	services := map[string]bool{}
	components := map[string]string{}

	for si := range c.Services {
		svc := &c.Services[si]
		if svc.Name == "" {
			return &areaserrors.ValidationError{Field: fmt.Sprintf("services[%d].name", si), Message: "is required"}
		}
		if services[svc.Name] {
			return &areaserrors.ValidationError{Field: "services", Message: fmt.Sprintf("duplicate service %q", svc.Name)}
		}
		services[svc.Name] = true
		if svc.DisplayName == "" {
			svc.DisplayName = svc.Name
		}

		for ci := range svc.Components {
			comp := &svc.Components[ci]
			field := fmt.Sprintf("%s.components[%d]", svc.Name, ci)
			if comp.Name == "" {
				return &areaserrors.ValidationError{Field: field + ".name", Message: "is required"}
			}
			if comp.Kind != store.KindAction && comp.Kind != store.KindReaction {
				return &areaserrors.ValidationError{Field: field + ".kind", Message: fmt.Sprintf("must be action or reaction, got %q", comp.Kind)}
			}
			// Dispatch and trigger lookup go by name alone.
			if owner, ok := components[comp.Name]; ok {
				return &areaserrors.ValidationError{
					Field:   field + ".name",
					Message: fmt.Sprintf("component %q already defined by service %q", comp.Name, owner),
				}
			}
			components[comp.Name] = svc.Name

			seen := map[string]bool{}
			for vi := range comp.Variables {
				v := &comp.Variables[vi]
				if v.Name == "" {
					return &areaserrors.ValidationError{Field: fmt.Sprintf("%s.variables[%d].name", comp.Name, vi), Message: "is required"}
				}
				if v.Kind == "" {
					v.Kind = store.VariableParameter
				}
				if v.Kind != store.VariableParameter && v.Kind != store.VariableReturn {
					return &areaserrors.ValidationError{Field: comp.Name + "." + v.Name, Message: fmt.Sprintf("unknown variable kind %q", v.Kind)}
				}
				key := string(v.Kind) + "/" + v.Name
				if seen[key] {
					return &areaserrors.ValidationError{Field: comp.Name + "." + v.Name, Message: "duplicate variable"}
				}
				seen[key] = true
			}
		}
	}
	return nil
}

// Apply creates every Service, Component and Variable missing from s.
// Existing rows are left untouched, so applying twice is a no-op.
func Apply(ctx context.Context, s store.CatalogStore, c *Catalog) (Summary, error) {
	var sum Summary
	for _, spec := range c.Services {
		svc, err := s.GetServiceByName(ctx, spec.Name)
		if areaserrors.IsNotFound(err) {
			svc = &store.Service{Name: spec.Name, DisplayName: spec.DisplayName, RequiresAuth: spec.RequiresAuth}
			if err := s.CreateService(ctx, svc); err != nil {
				return sum, fmt.Errorf("create service %s: %w", spec.Name, err)
			}
			sum.Services++
		} else if err != nil {
			return sum, fmt.Errorf("load service %s: %w", spec.Name, err)
		}

		for _, cspec := range spec.Components {
			comp, err := s.GetComponentByName(ctx, svc.ID, cspec.Name)
			if areaserrors.IsNotFound(err) {
				comp = &store.Component{
					ServiceID:   svc.ID,
					Name:        cspec.Name,
					Kind:        cspec.Kind,
					Description: cspec.Description,
				}
				if err := s.CreateComponent(ctx, comp); err != nil {
					return sum, fmt.Errorf("create component %s: %w", cspec.Name, err)
				}
				sum.Components++
			} else if err != nil {
				return sum, fmt.Errorf("load component %s: %w", cspec.Name, err)
			}

			n, err := applyVariables(ctx, s, comp.ID, cspec.Variables)
			sum.Variables += n
			if err != nil {
				return sum, fmt.Errorf("component %s: %w", cspec.Name, err)
			}
		}
	}
	return sum, nil
}

func applyVariables(ctx context.Context, s store.CatalogStore, componentID string, specs []Variable) (int, error) {
	existing, err := s.ListVariables(ctx, componentID)
	if err != nil {
		return 0, fmt.Errorf("list variables: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, v := range existing {
		have[string(v.Kind)+"/"+v.Name] = true
	}

	created := 0
	for _, spec := range specs {
		if have[string(spec.Kind)+"/"+spec.Name] {
			continue
		}
		v := &store.Variable{
			ComponentID:  componentID,
			Name:         spec.Name,
			Kind:         spec.Kind,
			Required:     spec.Required,
			DefaultValue: spec.Default,
			Description:  spec.Description,
		}
		if err := s.CreateVariable(ctx, v); err != nil {
			return created, fmt.Errorf("create variable %s: %w", spec.Name, err)
		}
		created++
	}
	return created, nil
}
