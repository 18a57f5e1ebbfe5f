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

// Package config implements the config command group.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/areas/internal/commands/shared"
	"github.com/tombee/areas/internal/config"
	"github.com/tombee/areas/internal/secrets"
)

const redacted = "********"

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Inspect engine configuration",
		Annotations: map[string]string{"group": "configuration"},
	}
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newValidateCommand())
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with credentials redacted",
		Long: `Print the configuration after defaults and AREAS_* environment overrides
are applied. Secret references are shown as written; literal credentials
are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return err
			}
			redact(cfg)

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and resolve secret references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (database: %s, listen: %s)\n",
				cfg.Database.Driver, cfg.Server.Addr)
			return nil
		},
	}
}

// redact hides literal credentials. Secret references are not sensitive.
func redact(cfg *config.Config) {
	for _, field := range []*string{
		&cfg.Database.DSN,
		&cfg.Email.Password,
		&cfg.Services.GitHub.WebhookSecret,
		&cfg.Services.Discord.BotToken,
		&cfg.Services.Google.ClientSecret,
		&cfg.Services.Reddit.ClientSecret,
		&cfg.Services.Spotify.ClientSecret,
		&cfg.Services.Twitch.ClientSecret,
		&cfg.Services.Trello.APIKey,
	} {
		if *field != "" && !secrets.IsReference(*field) {
			*field = redacted
		}
	}
}
