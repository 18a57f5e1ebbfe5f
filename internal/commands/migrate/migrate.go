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

// Package migrate implements the migrate command.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/commands/shared"
)

// NewCommand creates the migrate command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Open the configured database and apply every pending schema migration.

Migrations are also applied when the daemon starts; this command lets
operators run them ahead of a deploy.`,
		Annotations: map[string]string{"group": "database"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, err := shared.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), shared.OK("migrate"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
			return nil
		},
	}
}
