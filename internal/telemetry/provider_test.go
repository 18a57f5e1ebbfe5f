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

package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestProvider_MetricsHandlerExposesEngineMetrics(t *testing.T) {
	p, err := New(Config{ServiceName: "areas-test", ServiceVersion: "dev"})
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	p.Metrics().RecordEvaluation(context.Background(), "daily_timer", ResultFired)

	srv := httptest.NewServer(p.MetricsHandler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "areas_trigger_fires")
	assert.Contains(t, string(body), `trigger="daily_timer"`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestProvider_TwoInstancesDoNotCollide(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	b, err := New(Config{})
	require.NoError(t, err)
	defer b.Shutdown(context.Background())
}

func TestProvider_TracerRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p, err := New(Config{}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "area.fire")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "area.fire", spans[0].Name)
}
