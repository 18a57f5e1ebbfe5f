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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envSecretPrefix is the prefix for namespaced secret environment variables.
const envSecretPrefix = "AREAS_SECRET_"

// EnvBackend provides read-only access to secrets via environment variables.
// A key is looked up as AREAS_SECRET_<KEY> first, then verbatim.
type EnvBackend struct {
	lookup func(string) (string, bool)
}

// NewEnvBackend creates a new environment variable backend.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get retrieves a secret from environment variables.
func (e *EnvBackend) Get(ctx context.Context, key string) (string, error) {
	if value, ok := e.lookup(normalizeEnvKey(key)); ok && value != "" {
		return value, nil
	}
	if value, ok := e.lookup(key); ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// Available always returns true.
func (e *EnvBackend) Available() bool {
	return true
}

// normalizeEnvKey turns "services.spotify.client_secret" into
// AREAS_SECRET_SERVICES_SPOTIFY_CLIENT_SECRET.
func normalizeEnvKey(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_")
	return envSecretPrefix + strings.ToUpper(r.Replace(key))
}
