package trello

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	areaserrors "github.com/tombee/areas/pkg/errors"
)

func authed(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "k", r.URL.Query().Get("key"))
	assert.Equal(t, "tok", r.URL.Query().Get("token"))
}

func TestBoardActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed(t, r)
		assert.Equal(t, "/boards/b1/actions", r.URL.Path)
		assert.Equal(t, FilterCardMoved, r.URL.Query().Get("filter"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":"a9","type":"updateCard","date":"2025-06-02T08:59:00Z",
			"data":{"card":{"id":"c1","name":"Fix bug"},"listBefore":{"id":"l1","name":"Doing"},"listAfter":{"id":"l2","name":"Done"}},
			"memberCreator":{"username":"alice"}}]`))
	}))
	defer srv.Close()

	actions, err := New(srv.URL, "k", srv.Client()).BoardActions(context.Background(), "tok", "b1", FilterCardMoved, 1)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "a9", actions[0].ID)
	assert.Equal(t, "Done", actions[0].Data.ListAfter.Name)
	assert.Equal(t, "alice", actions[0].MemberCreator.Username)
}

func TestCreateAndMoveCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed(t, r)
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/cards", r.URL.Path)
			assert.Equal(t, "l1", r.URL.Query().Get("idList"))
			assert.Equal(t, "New card", r.URL.Query().Get("name"))
			w.Write([]byte(`{"id":"c1","name":"New card","idList":"l1","shortUrl":"https://trello.com/c/abc"}`))
		case http.MethodPut:
			assert.Equal(t, "/cards/c1", r.URL.Path)
			w.Write([]byte(`{"id":"c1","idList":"l2"}`))
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "k", srv.Client())

	card, err := c.CreateCard(context.Background(), "tok", "l1", "New card", "")
	require.NoError(t, err)
	assert.Equal(t, "https://trello.com/c/abc", card.ShortURL)

	moved, err := c.MoveCard(context.Background(), "tok", "c1", "l2")
	require.NoError(t, err)
	assert.Equal(t, "l2", moved.IDList)
}

func TestCreateCard_InvalidList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid value for idList"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", srv.Client()).CreateCard(context.Background(), "tok", "bad", "x", "")
	var ue *areaserrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "invalid value for idList")
}
