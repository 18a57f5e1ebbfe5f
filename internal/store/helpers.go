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
	"time"

	"github.com/google/uuid"

	areaserrors "github.com/tombee/areas/pkg/errors"
)

// NewID returns a random identifier for new rows.
func NewID() string {
	return uuid.NewString()
}

// ValidateAreaComponents checks that an Area binds an action to a reaction.
func ValidateAreaComponents(action, reaction *Component) error {
	if action.Kind != KindAction {
		return &areaserrors.ValidationError{
			Field:   "action_component_id",
			Message: "component " + action.Name + " is not an action",
		}
	}
	if reaction.Kind != KindReaction {
		return &areaserrors.ValidationError{
			Field:   "reaction_component_id",
			Message: "component " + reaction.Name + " is not a reaction",
		}
	}
	return nil
}

// OrNow returns t, or the current time when t is zero.
func OrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// TerminalStatuses lists the statuses removed by retention cleanup.
var TerminalStatuses = []ExecutionStatus{StatusSuccess, StatusFailed, StatusCancelled}
