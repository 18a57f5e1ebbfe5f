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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	areaserrors "github.com/tombee/areas/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *areaserrors.ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &areaserrors.ValidationError{Field: "time", Message: "parameter is required"},
			wantMsg: "validation failed on time: parameter is required",
		},
		{
			name:    "without field",
			err:     &areaserrors.ValidationError{Message: "invalid format"},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &areaserrors.NotFoundError{Resource: "execution", ID: "exec-1"}
	if got, want := err.Error(), "execution not found: exec-1"; got != want {
		t.Errorf("NotFoundError.Error() = %q, want %q", got, want)
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := &areaserrors.ConfigError{Key: "config_file", Reason: "failed to load", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("ConfigError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "config_file") {
		t.Errorf("expected key in message, got %q", err.Error())
	}
}

func TestTransitionError_Error(t *testing.T) {
	err := &areaserrors.TransitionError{ExecutionID: "e1", From: "FAILED", To: "SUCCESS"}
	want := "execution e1 cannot transition from FAILED to SUCCESS"
	if got := err.Error(); got != want {
		t.Errorf("TransitionError.Error() = %q, want %q", got, want)
	}
}

func TestUpstreamError(t *testing.T) {
	tests := []struct {
		name      string
		err       *areaserrors.UpstreamError
		contains  []string
		retryable bool
	}{
		{
			name:      "client error with body",
			err:       &areaserrors.UpstreamError{Service: "discord", Operation: "send message", StatusCode: 403, Body: `{"message":"Missing Access"}`},
			contains:  []string{"discord", "send message", "HTTP 403", "Missing Access"},
			retryable: false,
		},
		{
			name:      "rate limited",
			err:       &areaserrors.UpstreamError{Service: "reddit", StatusCode: 429},
			contains:  []string{"reddit API error", "HTTP 429"},
			retryable: true,
		},
		{
			name:      "long body is truncated",
			err:       &areaserrors.UpstreamError{Service: "trello", StatusCode: 500, Body: strings.Repeat("x", 2000)},
			contains:  []string{"..."},
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("expected %q in %q", s, msg)
				}
			}
			if tt.err.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", tt.err.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestTokenError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("invalid_grant")
	err := &areaserrors.TokenError{UserID: "u1", Service: "spotify", Reason: "refresh failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("TokenError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "spotify token unavailable for user u1") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
