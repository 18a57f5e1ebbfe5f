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

// Package shared holds state and helpers common to every CLI command.
package shared

// globals are bound to the root command's persistent flags.
var globals struct {
	verbose    bool
	json       bool
	configPath string
}

// build is injected from main.
var build = struct{ version, commit, date string }{"dev", "unknown", "unknown"}

// RegisterFlagPointers returns the verbose, json and config flag targets.
func RegisterFlagPointers() (*bool, *bool, *string) {
	return &globals.verbose, &globals.json, &globals.configPath
}

// SetVersion records build information.
func SetVersion(version, commit, date string) {
	build.version, build.commit, build.date = version, commit, date
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}

func GetVerbose() bool      { return globals.verbose }
func GetJSON() bool         { return globals.json }
func GetConfigPath() string { return globals.configPath }
func SetJSONForTest(v bool) { globals.json = v }
