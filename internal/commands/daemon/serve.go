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

// Package daemon implements the serve command.
package daemon

import (
	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/commands/completion"
	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/daemon"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		addr     string
		dbDriver string
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Areas engine in the foreground",
		Long: `Run the scheduler, the GitHub webhook endpoint and the operational API
until interrupted.`,
		Example: `  # Start with the default configuration
  areas serve

  # Listen on another port with a throwaway database
  areas serve --addr :9090 --db-driver memory`,
		Annotations: map[string]string{"group": "engine"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, c, b := shared.GetVersion()
			return daemon.Run(daemon.RunOptions{
				Version:    v,
				Commit:     c,
				BuildDate:  b,
				ConfigPath: shared.GetConfigPath(),
				Addr:       addr,
				DBDriver:   dbDriver,
				DBPath:     dbPath,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "", "Database driver (sqlite, postgres, memory)")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "SQLite database file")
	_ = cmd.RegisterFlagCompletionFunc("db-driver", completion.CompleteDBDriver)
	return cmd
}
