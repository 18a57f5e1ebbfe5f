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

package reaction

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/areas/internal/integration/discord"
	"github.com/tombee/areas/internal/integration/gmail"
	"github.com/tombee/areas/internal/integration/reddit"
	"github.com/tombee/areas/internal/integration/spotify"
	"github.com/tombee/areas/internal/integration/trello"
	"github.com/tombee/areas/internal/integration/twitch"
	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

func TestSendMessage_Discord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/42/messages", r.URL.Path)
		assert.Equal(t, "Bot bot-token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "New push to octo/hello", body["content"])
		w.Write([]byte(`{"id":"m-1","channel_id":"42","content":"New push to octo/hello"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, nil, Clients{Discord: discord.New(srv.URL, "bot-token", srv.Client())})
	exec := env.run(t, SendMessage,
		map[string]string{"channel_id": "42", "guild_id": "7", "message": "New push to {{repository}}"},
		map[string]any{"repository": "octo/hello"})

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "m-1", exec.ExecutionResult["message_id"])
	assert.Equal(t, "https://discord.com/channels/7/42/m-1", exec.ExecutionResult["message_url"])
}

func TestReactToMessage_Discord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	env := newTestEnv(t, nil, Clients{Discord: discord.New(srv.URL, "bot", srv.Client())})
	exec := env.run(t, ReactToMessage, map[string]string{"channel_id": "1", "message_id": "2", "emoji": "👍"}, nil)

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "👍", exec.ExecutionResult["emoji"])
}

func TestCreateCard_UpstreamErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid token"))
	}))
	defer srv.Close()

	env := newTestEnv(t, fakeTokens{token: "tok"}, Clients{Trello: trello.New(srv.URL, "key", srv.Client())})
	exec := env.run(t, CreateCard, map[string]string{"list_id": "l1", "name": "Card"}, nil)

	assert.Equal(t, store.StatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "HTTP 401")
	assert.Contains(t, exec.ErrorMessage, "invalid token")
}

func TestMoveCard_Trello(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards/c1", r.URL.Path)
		assert.Equal(t, "done", r.URL.Query().Get("idList"))
		w.Write([]byte(`{"id":"c1","idList":"done","shortUrl":"https://trello.com/c/c1"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, fakeTokens{token: "tok"}, Clients{Trello: trello.New(srv.URL, "key", srv.Client())})
	exec := env.run(t, MoveCard, map[string]string{"card_id": "{{card_id}}", "list_id": "done"}, map[string]any{"card_id": "c1"})

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "https://trello.com/c/c1", exec.ExecutionResult["card_url"])
}

func TestTokenErrorFails(t *testing.T) {
	tokenErr := &areaserrors.TokenError{UserID: "user-1", Service: "spotify", Reason: "refresh failed"}
	env := newTestEnv(t, fakeTokens{err: tokenErr}, Clients{Spotify: spotify.New("http://127.0.0.1:1", nil)})

	exec := env.run(t, AddToQueue, map[string]string{"track_uri": "abc"}, nil)

	assert.Equal(t, store.StatusFailed, exec.Status)
	assert.Equal(t, tokenErr.Error(), exec.ErrorMessage)
}

func TestAddToPlaylist_Spotify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/playlists/pl/tracks", r.URL.Path)
		assert.Equal(t, "Bearer sp-token", r.Header.Get("Authorization"))
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"spotify:track:a", "spotify:track:b"}, body["uris"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"snapshot_id":"snap"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, fakeTokens{token: "sp-token"}, Clients{Spotify: spotify.New(srv.URL, srv.Client())})
	exec := env.run(t, AddToPlaylist, map[string]string{"playlist_id": "pl", "track_uri": "a, https://open.spotify.com/track/b"}, nil)

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "snap", exec.ExecutionResult["snapshot_id"])
}

func TestSendChatMessage_Twitch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			if r.URL.Query().Get("login") == "" {
				w.Write([]byte(`{"data":[{"id":"me","login":"bot"}]}`))
				return
			}
			w.Write([]byte(`{"data":[{"id":"b-1","login":"gopher"}]}`))
		case "/chat/messages":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "b-1", body["broadcaster_id"])
			assert.Equal(t, "me", body["sender_id"])
			w.Write([]byte(`{"data":[{"message_id":"cm-1","is_sent":true}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, fakeTokens{token: "tw"}, Clients{Twitch: twitch.New(srv.URL, "cid", srv.Client())})
	exec := env.run(t, SendChatMessage, map[string]string{"channel": "gopher", "message": "hello chat"}, nil)

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "cm-1", exec.ExecutionResult["message_id"])
	assert.Equal(t, "gopher", exec.ExecutionResult["channel"])
}

func TestCreateRedditPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Stream is live", r.PostForm.Get("title"))
		w.Write([]byte(`{"json":{"errors":[],"data":{"id":"abc","name":"t3_abc","url":"https://reddit.com/r/golang/comments/abc/"}}}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, fakeTokens{token: "rd"}, Clients{Reddit: reddit.New(srv.URL, "ua", srv.Client())})
	exec := env.run(t, CreateRedditPost,
		map[string]string{"subreddit": "golang", "title": "{{stream_title}}"},
		map[string]any{"stream_title": "Stream is live"})

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "t3_abc", exec.ExecutionResult["post_name"])
}

func TestSendGmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/messages/send", r.URL.Path)
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"id":"g-1","threadId":"t-1"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, fakeTokens{token: "g"}, Clients{Gmail: gmail.New(srv.URL, srv.Client())})
	exec := env.run(t, SendGmail, map[string]string{"to": "x@y.com", "subject": "Hi"}, nil)

	require.Equal(t, store.StatusSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, "g-1", exec.ExecutionResult["message_id"])
	assert.Equal(t, "x@y.com", exec.ExecutionResult["email_recipient"])
}
