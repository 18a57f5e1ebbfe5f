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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/store"
)

const (
	executionCacheTTL = 2 * time.Second
	storeTimeout      = 500 * time.Millisecond
	completionLimit   = 50
)

type executionCacheEntry struct {
	execs     []*store.Execution
	expiresAt time.Time
}

var (
	executionCache   *executionCacheEntry
	executionCacheMu sync.RWMutex
)

// CompleteExecutionIDs provides dynamic completion for recent execution ids.
// Results are cached for two seconds.
func CompleteExecutionIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeExecutions(args, false)
}

// CompleteActiveExecutionIDs completes only PENDING or RUNNING executions.
// Used by 'executions cancel'.
func CompleteActiveExecutionIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeExecutions(args, true)
}

func completeExecutions(args []string, activeOnly bool) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		execs, err := recentExecutions()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		completions := make([]string, 0, len(execs))
		for _, e := range execs {
			if activeOnly && e.Status.IsTerminal() {
				continue
			}
			completions = append(completions, fmt.Sprintf("%s\tarea %s (%s)", e.ID, e.AreaID, e.Status))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

func recentExecutions() ([]*store.Execution, error) {
	executionCacheMu.RLock()
	if executionCache != nil && time.Now().Before(executionCache.expiresAt) {
		cached := executionCache.execs
		executionCacheMu.RUnlock()
		return cached, nil
	}
	executionCacheMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	s, closeStore, err := shared.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	execs, err := s.ListExecutions(ctx, store.ExecutionFilter{Limit: completionLimit})
	if err != nil {
		return nil, err
	}

	executionCacheMu.Lock()
	executionCache = &executionCacheEntry{execs: execs, expiresAt: time.Now().Add(executionCacheTTL)}
	executionCacheMu.Unlock()
	return execs, nil
}

func resetCache() {
	executionCacheMu.Lock()
	executionCache = nil
	executionCacheMu.Unlock()
}
