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

package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/areas/internal/events"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/store"
)

// fakeDispatcher completes the execution unless err is set.
type fakeDispatcher struct {
	ledger *ledger.Ledger
	err    error
	calls  int
}

func (d *fakeDispatcher) ProcessReaction(ctx context.Context, _, executionID, _ string) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	_, err := d.ledger.Complete(ctx, executionID, map[string]any{"ok": true})
	return err
}

type firerEnv struct {
	*testEnv
	ledger     *ledger.Ledger
	dispatcher *fakeDispatcher
	recorder   *events.Recorder
	spans      *tracetest.SpanRecorder
	firer      *Firer
}

func newFirerEnv(t *testing.T) *firerEnv {
	t.Helper()
	env := newTestEnv(t)
	rec := &events.Recorder{}
	l := ledger.New(ledger.Config{
		Executions: env.store,
		Publisher:  rec,
		Now:        func() time.Time { return at(2025, 6, 2, 9, 0, 1) },
	})
	d := &fakeDispatcher{ledger: l}
	spans := tracetest.NewSpanRecorder()
	return &firerEnv{
		testEnv:    env,
		ledger:     l,
		dispatcher: d,
		recorder:   rec,
		spans:      spans,
		firer: NewFirer(FirerConfig{
			Ledger:         l,
			Areas:          env.store,
			Dispatcher:     d,
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		}),
	}
}

func TestFirer_RunFiresAndRecords(t *testing.T) {
	env := newFirerEnv(t)
	ctx := context.Background()
	area := env.area(t, DailyTimer, map[string]string{"time": "09:00"})
	now := at(2025, 6, 2, 9, 0, 0)

	fired, err := env.firer.Run(ctx, NewDailyTimer(env.deps), area, now)
	require.NoError(t, err)
	assert.True(t, fired)

	execs, err := env.ledger.ListByArea(ctx, area.ID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, store.StatusSuccess, execs[0].Status)
	assert.Equal(t, "2025-06-02", execs[0].TriggerData["date"])
	assert.Equal(t, []string{"PENDING", "RUNNING", "SUCCESS"}, env.recorder.Statuses())

	got, err := env.store.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TriggeredCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(now))

	// The same minute does not fire again.
	fired, err = env.firer.Run(ctx, NewDailyTimer(env.deps), area, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 1, env.dispatcher.calls)

	var names []string
	for _, s := range env.spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "trigger.evaluate")
	assert.Contains(t, names, "trigger.fire")
}

func TestFirer_DispatchErrorFailsExecution(t *testing.T) {
	env := newFirerEnv(t)
	ctx := context.Background()
	env.dispatcher.err = errors.New("unknown reaction component \"nope\"")
	area := env.area(t, DailyTimer, map[string]string{"time": "09:00"})

	exec, err := env.firer.Fire(ctx, area, &Fire{TriggerData: map[string]any{"k": "v"}}, at(2025, 6, 2, 9, 0, 0))
	require.NoError(t, err)

	got, err := env.ledger.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, `unknown reaction component "nope"`, got.ErrorMessage)

	area, err = env.store.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), area.TriggeredCount)
}

func TestFirer_RunSkipsMisconfiguredArea(t *testing.T) {
	env := newFirerEnv(t)
	area := env.area(t, DailyTimer, nil)

	fired, err := env.firer.Run(context.Background(), NewDailyTimer(env.deps), area, at(2025, 6, 2, 9, 0, 0))
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Empty(t, env.recorder.Events())
}

func TestFirer_RunReturnsEvaluationErrors(t *testing.T) {
	env := newFirerEnv(t)
	area := env.area(t, GmailNewEmail, nil)
	tokens := &fakeTokens{err: errors.New("boom")}

	fired, err := env.firer.Run(context.Background(), NewGmailNewEmail(env.deps, tokens, nil), area, at(2025, 6, 2, 9, 0, 0))
	assert.False(t, fired)
	assert.ErrorContains(t, err, "boom")
}
