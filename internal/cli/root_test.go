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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "areas", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"verbose", "json", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")

	v, c, b := GetVersion()
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "abc123", c)
	assert.Equal(t, "2025-12-22", b)
}

// run executes the app against s and returns stdout.
func run(t *testing.T, s store.Store, args ...string) (string, error) {
	t.Helper()
	shared.SetStoreForTest(s)
	t.Cleanup(func() {
		shared.SetStoreForTest(nil)
		shared.SetJSONForTest(false)
	})

	app := NewApp()
	var out bytes.Buffer
	app.SetOut(&out)
	app.SetErr(&out)
	app.SetArgs(args)
	err := app.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedCommand(t *testing.T) {
	s := memory.New()

	out, err := run(t, s, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 9 services")

	out, err = run(t, s, "seed", "--json")
	require.NoError(t, err)
	var resp struct {
		Success bool `json:"success"`
		Created struct {
			Services int `json:"services"`
		} `json:"created"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Zero(t, resp.Created.Services)
}

func TestExecutionsCommands(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	area := storetest.SeedArea(t, s, storetest.AreaOptions{})
	l := ledger.New(ledger.Config{Executions: s})

	exec, err := l.Create(ctx, ledger.Draft{AreaID: area.ID})
	require.NoError(t, err)
	_, err = l.Start(ctx, exec.ID)
	require.NoError(t, err)

	out, err := run(t, s, "executions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, exec.ID)
	assert.Contains(t, out, "RUNNING")

	out, err = run(t, s, "executions", "list", "--area", area.ID, "--status", "success")
	require.NoError(t, err)
	assert.Contains(t, out, "No executions found")

	out, err = run(t, s, "executions", "cancel", exec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	_, err = run(t, s, "executions", "cancel", exec.ID)
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))

	_, err = run(t, s, "executions", "show", "missing")
	require.Error(t, err)
	assert.Equal(t, shared.ExitNotFound, shared.ExitCode(err))

	out, err = run(t, s, "executions", "stats", "--json")
	require.NoError(t, err)
	var stats store.ExecutionStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(1), stats.ByStatus[store.StatusCancelled])

	out, err = run(t, s, "executions", "cleanup", "--older-than-days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 executions")

	_, err = run(t, s, "executions", "cleanup", "--older-than-days", "0")
	require.Error(t, err)
}

func TestHookStateCommands(t *testing.T) {
	s := memory.New()
	area := storetest.SeedArea(t, s, storetest.AreaOptions{})
	hs := hookstate.New(hookstate.Config{States: s})
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, hs.Set(context.Background(), area.ID, hookstate.DailyTimerKey(area.ID, day), hookstate.FiredMarker))

	out, err := run(t, s, "hookstate", "list", "--area", area.ID)
	require.NoError(t, err)
	assert.Contains(t, out, hookstate.DailyTimerKey(area.ID, day))

	out, err = run(t, s, "hookstate", "list", "--prefix", "daily_timer_", "--json")
	require.NoError(t, err)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Count)

	_, err = run(t, s, "hookstate", "list")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
}

func TestVersionJSON(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")
	out, err := run(t, memory.New(), "version", "--json")
	require.NoError(t, err)

	var info struct {
		Success bool   `json:"success"`
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Success)
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
}

func TestHelpJSON(t *testing.T) {
	out, err := run(t, memory.New(), "help", "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	names := make([]string, 0, len(resp.Commands))
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Subset(t, names, []string{"serve", "migrate", "seed", "executions", "hookstate", "config", "completion", "version"})

	out, err = run(t, memory.New(), "help", "executions", "--json")
	require.NoError(t, err)
	resp = HelpResponse{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Command)
	assert.Equal(t, "executions", resp.Command.Name)
	assert.Len(t, resp.Command.Subcommands, 5)

	_, err = run(t, memory.New(), "help", "nope")
	require.Error(t, err)
}
