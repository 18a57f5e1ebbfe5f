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

// Package errors defines the typed errors shared across the engine.
package errors

import (
	"fmt"
	"strings"
)

// ValidationError represents a missing or malformed Area parameter or input.
// Evaluators treat it as a configuration problem: log and skip.
type ValidationError struct {
	// Field identifies which parameter failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "execution", "area", "component")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "database.driver")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TransitionError is returned when an execution status change is not allowed
// by the lifecycle (for example completing an execution that already failed).
type TransitionError struct {
	ExecutionID string
	From        string
	To          string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("execution %s cannot transition from %s to %s", e.ExecutionID, e.From, e.To)
}

// UpstreamError represents a non-2xx answer from a third-party API.
type UpstreamError struct {
	// Service is the integration name (e.g., "discord", "spotify")
	Service string

	// Operation describes the call that failed (e.g., "send message")
	Operation string

	// StatusCode is the HTTP status returned by the upstream API
	StatusCode int

	// Body is the (truncated) response body
	Body string
}

// maxBodyInMessage bounds how much of an upstream body ends up in an error message.
const maxBodyInMessage = 512

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInMessage {
		body = body[:maxBodyInMessage] + "..."
	}
	msg := fmt.Sprintf("%s API error", e.Service)
	if e.Operation != "" {
		msg = fmt.Sprintf("%s API error during %s", e.Service, e.Operation)
	}
	msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return msg
}

// IsRetryable returns true for rate limiting and server side failures.
func (e *UpstreamError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TokenError is returned when no usable access token can be obtained for a
// user and service, either because none is linked or because refresh failed.
type TokenError struct {
	UserID  string
	Service string
	Reason  string
	Cause   error
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	msg := fmt.Sprintf("%s token unavailable for user %s: %s", e.Service, e.UserID, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TokenError) Unwrap() error {
	return e.Cause
}
