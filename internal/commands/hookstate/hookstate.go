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

// Package hookstate implements the hookstate command group.
package hookstate

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/commands/completion"
	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/store"
)

// NewCommand creates the hookstate command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "hookstate",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "Inspect and clean up trigger Hook State",
		Long: `Hook State is the per-Area key/value state trigger evaluators use to
avoid firing twice for the same occurrence.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCleanupCommand())
	return cmd
}

func withHookStates(cmd *cobra.Command, fn func(*hookstate.Store) error) error {
	s, closeStore, err := shared.OpenStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(hookstate.New(hookstate.Config{States: s, Logger: shared.Logger()}))
}

func newListCommand() *cobra.Command {
	var (
		areaID string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List Hook State entries for an Area or key prefix",
		Example: `  # Everything stored for one Area
  areas hookstate list --area 3f2a...

  # Every daily timer marker
  areas hookstate list --prefix daily_timer_`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (areaID == "") == (prefix == "") {
				return shared.NewInvalidInputError("exactly one of --area or --prefix is required", nil)
			}
			return withHookStates(cmd, func(hs *hookstate.Store) error {
				var (
					states []*store.HookState
					err    error
				)
				if areaID != "" {
					states, err = hs.ListByArea(cmd.Context(), areaID)
				} else {
					states, err = hs.ListByPrefix(cmd.Context(), prefix)
				}
				if err != nil {
					return err
				}

				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"hook_states": states, "count": len(states)})
				}
				if len(states) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No hook states found")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "AREA\tKEY\tVALUE\tLAST CHECKED\tUPDATED")
				for _, s := range states {
					checked := "never"
					if s.LastCheckedAt != nil {
						checked = s.LastCheckedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						s.AreaID, s.StateKey, s.StateValue, checked, s.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&areaID, "area", "", "Area id")
	cmd.Flags().StringVar(&prefix, "prefix", "", "State key prefix")
	_ = cmd.RegisterFlagCompletionFunc("prefix", completion.CompleteHookStatePrefix)
	return cmd
}

func newCleanupCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete Hook State not updated for a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return shared.NewInvalidInputError("--older-than-days must be at least 1", nil)
			}
			return withHookStates(cmd, func(hs *hookstate.Store) error {
				n, err := hs.Cleanup(cmd.Context(), days)
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d hook states\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 30, "Age threshold in days")
	return cmd
}
