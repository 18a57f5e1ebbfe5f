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

// Package seed implements the seed command.
package seed

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/areas/internal/catalog"
	"github.com/tombee/areas/internal/commands/shared"
)

// NewCommand creates the seed command.
func NewCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the service catalog into the database",
		Long: `Create the Services, Components and Variables described by a catalog
YAML file. Without --file the built-in catalog is used. Rows that already
exist are left untouched, so seeding is safe to repeat.`,
		Example: `  # Seed the built-in catalog
  areas seed

  # Seed a custom catalog
  areas seed --file catalog.yaml`,
		Annotations: map[string]string{"group": "database"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				c   *catalog.Catalog
				err error
			)
			if file != "" {
				c, err = catalog.Load(file)
			} else {
				c, err = catalog.Default()
			}
			if err != nil {
				return shared.NewInvalidInputError("invalid catalog", err)
			}

			s, closeStore, err := shared.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			sum, err := catalog.Apply(cmd.Context(), s, c)
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Created catalog.Summary `json:"created"`
				}{
					JSONResponse: shared.OK("seed"),
					Created:      sum,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d services, %d components, %d variables\n", sum.Services, sum.Components, sum.Variables)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Catalog YAML file (default: built-in catalog)")
	return cmd
}
