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

package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasker(t *testing.T) {
	m := NewMasker("s3cr3t-token", "", "abc", "s3cr3t")

	assert.Equal(t, "discord API error: bad token *** in header", m.Mask("discord API error: bad token s3cr3t-token in header"))
	assert.Equal(t, "*** and ***", m.Mask("s3cr3t and s3cr3t"))
	assert.Equal(t, "abc is too short to mask", m.Mask("abc is too short to mask"))

	m.Add("s3cr3t")
	assert.Len(t, m.values, 2)
}

func TestNilMasker(t *testing.T) {
	var m *Masker
	assert.Equal(t, "unchanged", m.Mask("unchanged"))
}
