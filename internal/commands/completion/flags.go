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
	"github.com/spf13/cobra"
)

// CompleteExecutionStatus provides completion for --status flag values.
func CompleteExecutionStatus(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"PENDING\tCreated, reaction not started",
			"RUNNING\tReaction in progress",
			"SUCCESS\tReaction completed",
			"FAILED\tReaction returned an error",
			"CANCELLED\tCancelled by an operator",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteHookStatePrefix provides completion for --prefix flag values.
func CompleteHookStatePrefix(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"daily_timer_\tDaily timer occurrences",
			"weekly_timer_\tWeekly timer occurrences",
			"monthly_timer_\tMonthly timer occurrences",
			"interval_timer_\tInterval timer last fire times",
			"gmail_last_email_\tGmail cursors",
			"reddit_hot_post_\tReddit hot post cursors",
			"trello_new_card_\tTrello new card cursors",
			"trello_card_moved_\tTrello card moved cursors",
			"twitch_stream_live_\tTwitch live status",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteDBDriver provides completion for --db-driver flag values.
func CompleteDBDriver(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"sqlite\tEmbedded SQLite file",
			"postgres\tPostgreSQL server",
			"memory\tIn-process, lost on exit",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}
