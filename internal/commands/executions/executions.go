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

// Package executions implements the executions command group.
package executions

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/commands/completion"
	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/store"
)

// NewCommand creates the executions command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"exec"},
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "Inspect and manage the execution ledger",
		Long: `Commands for listing, inspecting, cancelling and cleaning up Area
executions recorded in the ledger.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newCleanupCommand())

	return cmd
}

// withLedger opens the store and runs fn against a ledger backed by it.
func withLedger(cmd *cobra.Command, fn func(*ledger.Ledger) error) error {
	s, closeStore, err := shared.OpenStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ledger.New(ledger.Config{Executions: s, Logger: shared.Logger()}))
}

func newListCommand() *cobra.Command {
	var (
		areaID string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions newest first",
		Example: `  # Recent executions across all Areas
  areas executions list

  # Failed executions only
  areas executions list --status FAILED

  # One Area's history as JSON
  areas executions list --area 3f2a... --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return shared.NewInvalidInputError("--limit must be positive", nil)
			}
			return withLedger(cmd, func(l *ledger.Ledger) error {
				var (
					execs []*store.Execution
					err   error
				)
				st := store.ExecutionStatus(strings.ToUpper(status))
				switch {
				case areaID != "":
					execs, err = l.ListByArea(cmd.Context(), areaID, 0)
				case status != "":
					execs, err = l.ListByStatus(cmd.Context(), st, limit)
				default:
					execs, err = l.Recent(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				execs = filter(execs, st, limit)

				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"executions": execs, "count": len(execs)})
				}
				writeTable(cmd.OutOrStdout(), execs)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&areaID, "area", "", "Filter by Area id")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCESS, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of executions")
	_ = cmd.RegisterFlagCompletionFunc("status", completion.CompleteExecutionStatus)
	return cmd
}

// filter applies the status filter on top of an Area listing and caps the result.
func filter(execs []*store.Execution, status store.ExecutionStatus, limit int) []*store.Execution {
	out := make([]*store.Execution, 0, len(execs))
	for _, e := range execs {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

func writeTable(w io.Writer, execs []*store.Execution) {
	if len(execs) == 0 {
		fmt.Fprintln(w, "No executions found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAREA\tSTATUS\tSTARTED\tDURATION\tERROR")
	for _, e := range execs {
		duration := "-"
		if e.ExecutionTimeMs != nil {
			duration = (time.Duration(*e.ExecutionTimeMs) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.AreaID, e.Status, e.StartedAt.Format(time.RFC3339), duration, truncate(e.ErrorMessage, 60))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <execution-id>",
		Short:             "Show one execution with its trigger data and result",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteExecutionIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(l *ledger.Ledger) error {
				exec, err := l.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), exec)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "ID:       %s\n", exec.ID)
				fmt.Fprintf(w, "Area:     %s\n", exec.AreaID)
				fmt.Fprintf(w, "Status:   %s\n", exec.Status)
				fmt.Fprintf(w, "Started:  %s\n", exec.StartedAt.Format(time.RFC3339))
				if exec.CompletedAt != nil {
					fmt.Fprintf(w, "Finished: %s\n", exec.CompletedAt.Format(time.RFC3339))
				}
				if exec.ErrorMessage != "" {
					fmt.Fprintf(w, "Error:    %s\n", exec.ErrorMessage)
				}
				printMap(w, "Trigger data", exec.TriggerData)
				printMap(w, "Result", exec.ExecutionResult)
				return nil
			})
		},
	}
}

func printMap(w io.Writer, title string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	data, err := json.MarshalIndent(m, "  ", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s:\n  %s\n", title, data)
}

func newStatsCommand() *cobra.Command {
	var areaID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show execution counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(l *ledger.Ledger) error {
				stats, err := l.Stats(cmd.Context(), areaID)
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), stats)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "TOTAL\t%d\n", stats.Total)
				for _, st := range store.AllStatuses {
					fmt.Fprintf(tw, "%s\t%d\n", st, stats.ByStatus[st])
				}
				fmt.Fprintf(tw, "AVG SUCCESS MS\t%.1f\n", stats.AvgExecutionTimeMs)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&areaID, "area", "", "Restrict to one Area")
	return cmd
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "cancel <execution-id>",
		Short:             "Cancel a PENDING or RUNNING execution",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteActiveExecutionIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(l *ledger.Ledger) error {
				exec, err := l.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), exec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Execution %s cancelled\n", exec.ID)
				return nil
			})
		},
	}
}

func newCleanupCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished executions older than a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return shared.NewInvalidInputError("--older-than-days must be at least 1", nil)
			}
			return withLedger(cmd, func(l *ledger.Ledger) error {
				n, err := l.Cleanup(cmd.Context(), days)
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d executions\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 30, "Age threshold in days")
	return cmd
}
