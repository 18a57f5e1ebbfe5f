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

// Package secrets resolves secret references found in configuration
// (env:NAME, ${NAME}, keychain:NAME) to their values, and masks resolved
// values out of recorded text.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSecretNotFound     = errors.New("secret not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Backend looks secrets up by key for one reference scheme.
type Backend interface {
	// Name is the reference scheme served ("env", "keychain").
	Name() string

	// Get returns ErrSecretNotFound for a missing key.
	Get(ctx context.Context, key string) (string, error)

	Available() bool
}

// Resolver turns secret references into values. Supported forms:
//
//	env:NAME        environment backend
//	${NAME}         environment backend
//	keychain:NAME   system keychain
//
// Anything else is returned unchanged as a literal value.
type Resolver struct {
	backends map[string]Backend
}

// NewResolver creates a resolver over the given backends, keyed by Name().
// Availability is checked on first use, so an unused keychain is never probed.
func NewResolver(backends ...Backend) *Resolver {
	r := &Resolver{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// IsReference reports whether value uses one of the reference forms.
func IsReference(value string) bool {
	_, _, ok := parseReference(value)
	return ok
}

// Resolve returns the value a reference points to, or value itself when it
// is not a reference.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	scheme, key, ok := parseReference(value)
	if !ok {
		return value, nil
	}

	backend, found := r.backends[scheme]
	if !found || !backend.Available() {
		return "", fmt.Errorf("%w: %s", ErrBackendUnavailable, scheme)
	}

	secret, err := backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret reference %q: %w", value, err)
	}
	return secret, nil
}

func parseReference(value string) (scheme, key string, ok bool) {
	switch {
	case strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") && len(value) > 3:
		return "env", value[2 : len(value)-1], true
	case strings.HasPrefix(value, "env:") && len(value) > len("env:"):
		return "env", strings.TrimPrefix(value, "env:"), true
	case strings.HasPrefix(value, "keychain:") && len(value) > len("keychain:"):
		return "keychain", strings.TrimPrefix(value, "keychain:"), true
	}
	return "", "", false
}
