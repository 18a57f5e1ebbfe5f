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

package shared

import (
	"encoding/json"
	"io"
)

// jsonSchemaVersion is the @version of every JSON document the CLI prints.
const jsonSchemaVersion = "1.0"

// JSONResponse is the envelope embedded in every JSON document.
type JSONResponse struct {
	Version string     `json:"@version"`
	Command string     `json:"command"`
	Success bool       `json:"success"`
	Error   *JSONError `json:"error,omitempty"`
}

// JSONError describes a failed command.
type JSONError struct {
	Message  string `json:"message"`
	ExitCode int    `json:"exit_code"`
}

// OK returns a successful envelope for command.
func OK(command string) JSONResponse {
	return JSONResponse{Version: jsonSchemaVersion, Command: command, Success: true}
}

// Failed returns an envelope for err.
func Failed(command string, err error) JSONResponse {
	return JSONResponse{
		Version: jsonSchemaVersion,
		Command: command,
		Error:   &JSONError{Message: err.Error(), ExitCode: ExitCode(err)},
	}
}

// EmitJSON writes v as indented JSON.
func EmitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
