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
	"slices"
	"strings"
)

// maskedValue replaces every masked occurrence.
const maskedValue = "***"

// minMaskLength skips values too short to mask without mangling text.
const minMaskLength = 4

// Masker replaces known credential values in text. A nil Masker masks nothing.
type Masker struct {
	values []string
}

// NewMasker creates a Masker for values. Empty and very short values are ignored.
func NewMasker(values ...string) *Masker {
	m := &Masker{}
	for _, v := range values {
		m.Add(v)
	}
	return m
}

// Add registers one more value to mask.
func (m *Masker) Add(value string) {
	if len(value) < minMaskLength || slices.Contains(m.values, value) {
		return
	}
	m.values = append(m.values, value)
	// Longest first, so a value containing another is masked whole.
	slices.SortFunc(m.values, func(a, b string) int { return len(b) - len(a) })
}

// Mask replaces every registered value in s with "***".
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	for _, v := range m.values {
		s = strings.ReplaceAll(s, v, maskedValue)
	}
	return s
}
