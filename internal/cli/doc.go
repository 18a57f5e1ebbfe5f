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

/*
Package cli provides the root command and shared configuration for the areas CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	areas
	├── serve         Run the engine in the foreground
	├── migrate       Apply database migrations
	├── seed          Load the service catalog
	├── executions    list | show | stats | cancel | cleanup
	├── hookstate     list | cleanup
	├── config        show | validate
	├── completion    bash | zsh | fish | powershell
	├── version       Show version
	└── help          Show help (--json for machine-readable output)

Every command accepts --config to point at a YAML file and --json to emit
JSON instead of tables.
*/
package cli
