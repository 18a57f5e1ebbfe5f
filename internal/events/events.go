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

// Package events publishes execution lifecycle events.
package events

import (
	"context"
	"sync"
	"time"
)

// ExecutionEvent describes one execution status change.
type ExecutionEvent struct {
	ExecutionID     string    `json:"execution_id"`
	AreaID          string    `json:"area_id"`
	From            string    `json:"from,omitempty"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMs *int64    `json:"execution_time_ms,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher delivers execution events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, ev ExecutionEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, ExecutionEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// Recorder keeps published events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []ExecutionEvent
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev ExecutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []ExecutionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExecutionEvent(nil), r.events...)
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }

// Statuses returns the recorded statuses in order.
func (r *Recorder) Statuses() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Status
	}
	return out
}
