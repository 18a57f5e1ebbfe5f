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

package shared

import (
	"context"
	"log/slog"

	"github.com/tombee/areas/internal/config"
	"github.com/tombee/areas/internal/daemon"
	"github.com/tombee/areas/internal/log"
	"github.com/tombee/areas/internal/secrets"
	"github.com/tombee/areas/internal/store"
)

// storeOverride lets tests run commands against an in-process store.
var storeOverride store.Store

// SetStoreForTest makes OpenStore return s until reset with nil.
func SetStoreForTest(s store.Store) {
	storeOverride = s
}

// LoadConfig loads the configuration named by --config and resolves
// secret references.
func LoadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, err
	}
	resolver := secrets.NewResolver(secrets.NewEnvBackend(), secrets.NewKeychainBackend())
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore opens the configured database, applying pending migrations.
// The caller closes it unless it came from SetStoreForTest.
func OpenStore(ctx context.Context) (store.Store, func(), error) {
	if storeOverride != nil {
		return storeOverride, func() {}, nil
	}

	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	s, err := daemon.OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

// Logger returns a logger honouring --verbose.
func Logger() *slog.Logger {
	cfg := log.FromEnv()
	if GetVerbose() {
		cfg.Level = "debug"
	}
	return log.New(cfg)
}
