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

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisher_Embedded(t *testing.T) {
	p, err := Connect(context.Background(), Config{Embedded: true, SubjectPrefix: "test.executions"})
	require.NoError(t, err)
	defer p.Close()

	sub, err := nats.Connect(p.URL())
	require.NoError(t, err)
	defer sub.Close()

	s, err := sub.SubscribeSync("test.executions.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	ms := int64(42)
	require.NoError(t, p.Publish(context.Background(), ExecutionEvent{
		ExecutionID:     "e1",
		AreaID:          "a1",
		From:            "RUNNING",
		Status:          "SUCCESS",
		ExecutionTimeMs: &ms,
		OccurredAt:      time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}))

	msg, err := s.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.executions.success", msg.Subject)

	var got ExecutionEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "e1", got.ExecutionID)
	assert.Equal(t, "RUNNING", got.From)
	require.NotNil(t, got.ExecutionTimeMs)
	assert.Equal(t, int64(42), *got.ExecutionTimeMs)
}

func TestNATSPublisher_DefaultPrefix(t *testing.T) {
	p := &NATSPublisher{prefix: "areas.executions"}
	assert.Equal(t, "areas.executions.failed", p.Subject("FAILED"))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "nats://127.0.0.1:1"})
	assert.ErrorContains(t, err, "connect to NATS")
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), ExecutionEvent{Status: "PENDING"}))
	require.NoError(t, r.Publish(context.Background(), ExecutionEvent{Status: "RUNNING"}))
	assert.Equal(t, []string{"PENDING", "RUNNING"}, r.Statuses())

	var nop Publisher = NopPublisher{}
	assert.NoError(t, nop.Publish(context.Background(), ExecutionEvent{}))
}
