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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	areaserrors "github.com/tombee/areas/pkg/errors"
)

func TestExecutionStatus_IsTerminal(t *testing.T) {
	tests := map[ExecutionStatus]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusSuccess:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for status, want := range tests {
		assert.Equal(t, want, status.IsTerminal(), status)
		assert.True(t, status.Valid(), status)
	}
	assert.False(t, ExecutionStatus("DONE").Valid())
}

func TestValidateAreaComponents(t *testing.T) {
	action := &Component{Name: "daily_timer", Kind: KindAction}
	reaction := &Component{Name: "send_email", Kind: KindReaction}

	assert.NoError(t, ValidateAreaComponents(action, reaction))

	err := ValidateAreaComponents(reaction, reaction)
	assert.True(t, areaserrors.IsValidation(err))
	assert.Contains(t, err.Error(), "action_component_id")

	err = ValidateAreaComponents(action, action)
	assert.Contains(t, err.Error(), "reaction_component_id")
}
