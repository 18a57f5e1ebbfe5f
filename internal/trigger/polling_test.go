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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/integration/gmail"
	"github.com/tombee/areas/internal/integration/reddit"
	"github.com/tombee/areas/internal/integration/trello"
	"github.com/tombee/areas/internal/integration/twitch"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// responder serves the response at the current index of bodies.
type responder struct {
	bodies []string
	idx    atomic.Int32
}

func (r *responder) next() { r.idx.Add(1) }

func (r *responder) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(r.bodies[int(r.idx.Load())]))
}

func TestRedditHotPost_BaselineThenChange(t *testing.T) {
	resp := &responder{bodies: []string{
		`{"data":{"children":[{"data":{"id":"p1","title":"first","permalink":"/r/golang/p1/"}}]}}`,
		`{"data":{"children":[{"data":{"id":"p1","title":"first","permalink":"/r/golang/p1/"}}]}}`,
		`{"data":{"children":[{"data":{"id":"s","stickied":true}},{"data":{"id":"p2","title":"second","author":"gopher","permalink":"/r/golang/p2/"}}]}}`,
	}}
	srv := httptest.NewServer(resp)
	defer srv.Close()

	env := newTestEnv(t)
	tokens := &fakeTokens{token: "tok"}
	ev := NewRedditHotPost(env.deps, tokens, reddit.New(srv.URL, "areas-test", srv.Client()))
	area := env.area(t, RedditHotPost, map[string]string{"subreddit": "GoLang"})
	now := at(2025, 6, 2, 12, 0, 0)

	// First observation only records the baseline.
	requireNoFire(t, ev, area, now)
	v, found, err := env.states.Get(context.Background(), area.ID, hookstate.RedditHotPostKey(area.ID, "golang"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "p1", v)

	resp.next()
	requireNoFire(t, ev, area, now)

	resp.next()
	fire := requireFire(t, ev, area, now)
	assert.Equal(t, "p2", fire.TriggerData["post_id"])
	assert.Equal(t, "gopher", fire.TriggerData["post_author"])
	assert.Equal(t, "https://www.reddit.com/r/golang/p2/", fire.TriggerData["post_url"])

	// Unchanged afterwards.
	requireNoFire(t, ev, area, now)
	assert.Equal(t, []string{"user-1/reddit", "user-1/reddit", "user-1/reddit", "user-1/reddit"}, tokens.calls)
}

func TestRedditHotPost_MissingSubreddit(t *testing.T) {
	env := newTestEnv(t)
	ev := NewRedditHotPost(env.deps, &fakeTokens{token: "tok"}, reddit.New("http://127.0.0.1:1", "ua", nil))
	area := env.area(t, RedditHotPost, nil)

	_, err := ev.Evaluate(context.Background(), area, at(2025, 6, 2, 12, 0, 0))
	assert.True(t, areaserrors.IsValidation(err))
}

func TestPolling_TokenErrorDoesNotTouchCursor(t *testing.T) {
	env := newTestEnv(t)
	tokenErr := &areaserrors.TokenError{UserID: "user-1", Service: "gmail", Reason: "no linked account"}
	ev := NewGmailNewEmail(env.deps, &fakeTokens{err: tokenErr}, gmail.New("http://127.0.0.1:1", nil))
	area := env.area(t, GmailNewEmail, nil)

	_, err := ev.Evaluate(context.Background(), area, at(2025, 6, 2, 12, 0, 0))
	var te *areaserrors.TokenError
	assert.ErrorAs(t, err, &te)

	states, err := env.states.ListByArea(context.Background(), area.ID)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestGmailNewEmail_EmptyMailboxThenMessage(t *testing.T) {
	var hasMail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me/messages":
			assert.Equal(t, "from:boss", r.URL.Query().Get("q"))
			if !hasMail.Load() {
				w.Write([]byte(`{}`))
				return
			}
			w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"}]}`))
		case "/users/me/messages/m1":
			w.Write([]byte(`{"id":"m1","threadId":"t1","snippet":"hi","payload":{"headers":[
				{"name":"From","value":"boss@example.com"},{"name":"Subject","value":"Status"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t)
	ev := NewGmailNewEmail(env.deps, &fakeTokens{token: "tok"}, gmail.New(srv.URL, srv.Client()))
	area := env.area(t, GmailNewEmail, map[string]string{"query": "from:boss"})
	now := at(2025, 6, 2, 12, 0, 0)

	requireNoFire(t, ev, area, now)
	requireNoFire(t, ev, area, now)

	hasMail.Store(true)
	fire := requireFire(t, ev, area, now)
	assert.Equal(t, "m1", fire.TriggerData["email_id"])
	assert.Equal(t, "boss@example.com", fire.TriggerData["email_from"])
	assert.Equal(t, "Status", fire.TriggerData["email_subject"])
}

func TestTrelloCardMoved_TargetList(t *testing.T) {
	resp := &responder{bodies: []string{
		`[{"id":"a1","data":{"card":{"id":"c1"},"listBefore":{"id":"todo"},"listAfter":{"id":"doing"}}}]`,
		`[{"id":"a3","data":{"card":{"id":"c2","name":"Ship"},"listBefore":{"id":"todo"},"listAfter":{"id":"doing"}}},
		  {"id":"a2","data":{"card":{"id":"c1","name":"Write"},"listBefore":{"id":"doing","name":"Doing"},"listAfter":{"id":"done","name":"Done"}}}]`,
	}}
	srv := httptest.NewServer(resp)
	defer srv.Close()

	env := newTestEnv(t)
	ev := NewTrelloCardMoved(env.deps, &fakeTokens{token: "tok"}, trello.New(srv.URL, "key", srv.Client()))
	area := env.area(t, TrelloCardMoved, map[string]string{"board_id": "b1", "to_list_id": "done"})
	now := at(2025, 6, 2, 12, 0, 0)

	requireNoFire(t, ev, area, now)

	resp.next()
	fire := requireFire(t, ev, area, now)
	assert.Equal(t, "c1", fire.TriggerData["card_id"])
	assert.Equal(t, "Done", fire.TriggerData["to_list_name"])
	assert.Equal(t, "Doing", fire.TriggerData["from_list_name"])
}

func TestTrelloNewCard(t *testing.T) {
	resp := &responder{bodies: []string{
		`[{"id":"a1","data":{"card":{"id":"c1","name":"Old"},"list":{"id":"l1","name":"Inbox"}}}]`,
		`[{"id":"a2","data":{"card":{"id":"c2","name":"New"},"list":{"id":"l1","name":"Inbox"}},"memberCreator":{"username":"kim"}}]`,
	}}
	srv := httptest.NewServer(resp)
	defer srv.Close()

	env := newTestEnv(t)
	ev := NewTrelloNewCard(env.deps, &fakeTokens{token: "tok"}, trello.New(srv.URL, "key", srv.Client()))
	area := env.area(t, TrelloNewCard, map[string]string{"board_id": "b1"})
	now := at(2025, 6, 2, 12, 0, 0)

	requireNoFire(t, ev, area, now)
	resp.next()
	fire := requireFire(t, ev, area, now)
	assert.Equal(t, "New", fire.TriggerData["card_name"])
	assert.Equal(t, "kim", fire.TriggerData["created_by"])
}

func TestTwitchStreamLive_OfflineLiveOffline(t *testing.T) {
	resp := &responder{bodies: []string{
		`{"data":[]}`,
		`{"data":[{"id":"s1","user_login":"gopher","user_name":"Gopher","title":"Live coding","game_name":"Software","viewer_count":12,"started_at":"2025-06-02T11:58:00Z"}]}`,
		`{"data":[{"id":"s1","user_login":"gopher","user_name":"Gopher"}]}`,
		`{"data":[]}`,
		`{"data":[{"id":"s2","user_login":"gopher","user_name":"Gopher"}]}`,
	}}
	srv := httptest.NewServer(resp)
	defer srv.Close()

	env := newTestEnv(t)
	ev := NewTwitchStreamLive(env.deps, &fakeTokens{token: "tok"}, twitch.New(srv.URL, "client", srv.Client()))
	area := env.area(t, TwitchStreamLive, map[string]string{"channel": "Gopher"})
	now := at(2025, 6, 2, 12, 0, 0)

	requireNoFire(t, ev, area, now)

	resp.next()
	fire := requireFire(t, ev, area, now)
	assert.Equal(t, "Live coding", fire.TriggerData["stream_title"])
	assert.Equal(t, 12, fire.TriggerData["viewer_count"])

	resp.next()
	requireNoFire(t, ev, area, now)

	resp.next()
	requireNoFire(t, ev, area, now)
	v, _, err := env.states.Get(context.Background(), area.ID, hookstate.TwitchLiveKey(area.ID, "gopher"))
	require.NoError(t, err)
	assert.Equal(t, "offline", v)

	resp.next()
	requireFire(t, ev, area, now)
}
