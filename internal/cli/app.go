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
	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/commands/completion"
	"github.com/tombee/areas/internal/commands/config"
	"github.com/tombee/areas/internal/commands/daemon"
	"github.com/tombee/areas/internal/commands/executions"
	"github.com/tombee/areas/internal/commands/hookstate"
	"github.com/tombee/areas/internal/commands/migrate"
	"github.com/tombee/areas/internal/commands/seed"
	versioncmd "github.com/tombee/areas/internal/commands/version"
)

// NewApp creates the root command with every subcommand attached.
func NewApp() *cobra.Command {
	rootCmd := NewRootCommand()

	// Engine
	rootCmd.AddCommand(daemon.NewServeCommand())

	// Database
	rootCmd.AddCommand(migrate.NewCommand())
	rootCmd.AddCommand(seed.NewCommand())

	// Management
	rootCmd.AddCommand(executions.NewCommand())
	rootCmd.AddCommand(hookstate.NewCommand())

	// Configuration
	rootCmd.AddCommand(config.NewConfigCommand())
	rootCmd.AddCommand(completion.NewCommand())

	rootCmd.AddCommand(versioncmd.NewVersionCommand())
	rootCmd.SetHelpCommand(NewHelpCommand(rootCmd))

	groupCommands(rootCmd)
	return rootCmd
}

var commandGroups = []*cobra.Group{
	{ID: "engine", Title: "Engine:"},
	{ID: "database", Title: "Database:"},
	{ID: "management", Title: "Management:"},
	{ID: "configuration", Title: "Configuration:"},
}

// groupCommands turns the "group" annotation into a cobra help group.
func groupCommands(rootCmd *cobra.Command) {
	rootCmd.AddGroup(commandGroups...)
	for _, c := range rootCmd.Commands() {
		if id := c.Annotations["group"]; id != "" {
			c.GroupID = id
		}
	}
}
