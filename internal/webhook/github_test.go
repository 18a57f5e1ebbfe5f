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

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/ledger"
	"github.com/tombee/areas/internal/params"
	"github.com/tombee/areas/internal/reaction"
	"github.com/tombee/areas/internal/store"
	"github.com/tombee/areas/internal/store/memory"
	"github.com/tombee/areas/internal/store/storetest"
	"github.com/tombee/areas/internal/trigger"
)

const pushPayload = `{"ref":"refs/heads/main","repository":{"name":"hello","full_name":"octo/hello"},"sender":{"login":"octocat"},"head_commit":{"id":"abc","message":"fix"}}`

type fixture struct {
	store   store.Store
	states  *hookstate.Store
	ledger  *ledger.Ledger
	handler *GitHubHandler
}

func newFixture(t *testing.T, secret string, maxBody int64) *fixture {
	t.Helper()
	backend := memory.New()
	t.Cleanup(func() { backend.Close() })

	states := hookstate.New(hookstate.Config{States: backend})
	resolver := params.NewResolver(backend)
	l := ledger.New(ledger.Config{Executions: backend})

	d := reaction.NewDispatcher(reaction.DispatcherConfig{Lookups: backend})
	reaction.RegisterAll(d, reaction.NewRunner(reaction.RunnerConfig{Ledger: l, Params: resolver}), reaction.Clients{})

	deps := trigger.Deps{Params: resolver, States: states}
	firer := trigger.NewFirer(trigger.FirerConfig{Ledger: l, Areas: backend, Dispatcher: d})

	return &fixture{
		store:  backend,
		states: states,
		ledger: l,
		handler: NewGitHubHandler(Config{
			Areas:  backend,
			Runner: firer,
			Triggers: []*trigger.GitHubTrigger{
				trigger.NewGitHubPush(deps),
				trigger.NewGitHubPullRequestOpened(deps),
				trigger.NewGitHubIssueOpened(deps),
			},
			Secret:       secret,
			MaxBodyBytes: maxBody,
			Now:          func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) },
		}),
	}
}

func (f *fixture) post(t *testing.T, event, body string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	mux := http.NewServeMux()
	f.handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(body))
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestGitHub_MissingEventHeader(t *testing.T) {
	f := newFixture(t, "", 0)
	rec, out := f.post(t, "", pushPayload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "X-GitHub-Event")
}

func TestGitHub_Ping(t *testing.T) {
	f := newFixture(t, "", 0)
	rec, out := f.post(t, "ping", `{"zen":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", out["message"])
}

func TestGitHub_UnhandledEvent(t *testing.T) {
	f := newFixture(t, "", 0)
	rec, out := f.post(t, "release", `{}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event release not handled", out["message"])
}

func TestGitHub_BadPayload(t *testing.T) {
	f := newFixture(t, "", 0)
	rec, _ := f.post(t, "push", `{"ref":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.post(t, "pull_request", `{"action":"opened","repository":{"full_name":"a/b"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGitHub_Signature(t *testing.T) {
	f := newFixture(t, "s3cret", 0)

	rec, _ := f.post(t, "push", pushPayload, http.Header{"X-Hub-Signature-256": {"sha256=deadbeef"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.post(t, "push", pushPayload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.post(t, "push", pushPayload, http.Header{"X-Hub-Signature-256": {Sign([]byte(pushPayload), "s3cret")}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGitHub_BodyLimit(t *testing.T) {
	f := newFixture(t, "", 16)
	rec, _ := f.post(t, "push", pushPayload, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGitHub_PushFiresMatchingAreas(t *testing.T) {
	f := newFixture(t, "", 0)
	ctx := context.Background()

	anyRepo := storetest.SeedArea(t, f.store, storetest.AreaOptions{
		Action:         trigger.GitHubPush,
		ReactionParams: map[string]string{"to": "dev@example.com", "subject": "push to {{repository}}"},
	})
	other := storetest.SeedArea(t, f.store, storetest.AreaOptions{Action: trigger.GitHubPush})
	require.NoError(t, f.states.Set(ctx, other.ID, hookstate.RepositoryKey, "octo/other"))
	storetest.SeedArea(t, f.store, storetest.AreaOptions{Action: trigger.GitHubIssueOpened})

	rec, out := f.post(t, "push", pushPayload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["triggered"])
	assert.Equal(t, "octo/hello", out["repository"])

	execs, err := f.ledger.ListByArea(ctx, anyRepo.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, store.StatusSuccess, execs[0].Status)
	assert.Equal(t, "push to octo/hello", execs[0].ExecutionResult["subject"])

	execs, err = f.ledger.ListByArea(ctx, other.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.NoError(t, Verify(http.Header{"X-Hub-Signature-256": {Sign(body, "k")}}, body, "k"))
	assert.ErrorContains(t, Verify(http.Header{"X-Hub-Signature": {"sha1=00"}}, body, "k"), "SHA-1")
	assert.ErrorContains(t, Verify(http.Header{"X-Hub-Signature-256": {"md5=00"}}, body, "k"), "format")
}
