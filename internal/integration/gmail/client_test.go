package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "from:boss", r.URL.Query().Get("q"))
		w.Write([]byte(`{"messages":[{"id":"m2","threadId":"t2"},{"id":"m1","threadId":"t1"}]}`))
	})
	mux.HandleFunc("/users/me/messages/m2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "metadata", r.URL.Query().Get("format"))
		assert.Equal(t, []string{"From", "Subject"}, r.URL.Query()["metadataHeaders"])
		w.Write([]byte(`{"id":"m2","threadId":"t2","snippet":"hi there","internalDate":"1700000000000",
			"payload":{"headers":[{"name":"From","value":"Boss <boss@example.com>"},{"name":"Subject","value":"Report"}]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	msg, err := New(srv.URL, srv.Client()).LatestMessage(context.Background(), "tok", "from:boss")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, "Boss <boss@example.com>", msg.From)
	assert.Equal(t, "Report", msg.Subject)
	assert.Equal(t, "hi there", msg.Snippet)
}

func TestLatestMessage_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultSizeEstimate":0}`))
	}))
	defer srv.Close()

	msg, err := New(srv.URL, srv.Client()).LatestMessage(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/messages/send", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		raw, err := base64.URLEncoding.DecodeString(body["raw"])
		require.NoError(t, err)
		assert.Contains(t, string(raw), "To: x@y.com\r\n")
		assert.Contains(t, string(raw), "Subject: Hi\r\n")
		assert.Contains(t, string(raw), "\r\n\r\nHello")

		w.Write([]byte(`{"id":"sent1","threadId":"t9"}`))
	}))
	defer srv.Close()

	ref, err := New(srv.URL, srv.Client()).Send(context.Background(), "tok", "x@y.com", "Hi", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "sent1", ref.ID)
}
