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

package completion

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
)

func TestCompleteExecutionIDs(t *testing.T) {
	resetCache()
	s := memory.New()
	shared.SetStoreForTest(s)
	t.Cleanup(func() {
		shared.SetStoreForTest(nil)
		resetCache()
	})

	ctx := context.Background()
	area := storetest.SeedArea(t, s, storetest.AreaOptions{})
	l := ledger.New(ledger.Config{Executions: s})

	running, err := l.Create(ctx, ledger.Draft{AreaID: area.ID})
	require.NoError(t, err)
	_, err = l.Start(ctx, running.ID)
	require.NoError(t, err)

	done, err := l.Create(ctx, ledger.Draft{AreaID: area.ID})
	require.NoError(t, err)
	_, err = l.Cancel(ctx, done.ID)
	require.NoError(t, err)

	all, directive := CompleteExecutionIDs(nil, nil, "")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Len(t, all, 2)

	active, _ := CompleteActiveExecutionIDs(nil, nil, "")
	require.Len(t, active, 1)
	assert.True(t, strings.HasPrefix(active[0], running.ID+"\t"))
	assert.Contains(t, active[0], "RUNNING")

	// Only the first positional argument is completed.
	rest, _ := CompleteExecutionIDs(nil, []string{running.ID}, "")
	assert.Empty(t, rest)
}

func TestSafeCompletionWrapperRecovers(t *testing.T) {
	results, directive := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		panic("boom")
	})
	assert.Empty(t, results)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	results, _ = SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveDefault
	})
	assert.NotNil(t, results)
}

func TestStaticCompleters(t *testing.T) {
	statuses, _ := CompleteExecutionStatus(nil, nil, "")
	assert.Len(t, statuses, 5)

	prefixes, _ := CompleteHookStatePrefix(nil, nil, "")
	assert.Contains(t, prefixes, "daily_timer_\tDaily timer occurrences")

	drivers, _ := CompleteDBDriver(nil, nil, "")
	assert.Len(t, drivers, 3)
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "areas"}
	root.AddCommand(NewCommand())

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"completion", shell})
		require.NoError(t, root.Execute(), shell)
		assert.Contains(t, out.String(), "areas", shell)
	}

	root.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, root.Execute())
}
