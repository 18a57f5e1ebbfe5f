package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	areaserrors "github.com/tombee/areas/pkg/errors"
)

func TestClient_JSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("x"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "static", r.Header.Get("X-Static"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "hello", in["name"])

		w.Write([]byte(`{"id":"t1"}`))
	}))
	defer srv.Close()

	c := NewClient("things", srv.URL+"/v1/", srv.Client(), http.Header{"X-Static": {"static"}})
	var out struct {
		ID string `json:"id"`
	}
	err := c.Do(context.Background(), Request{
		Method:    "POST",
		Path:      "/things",
		Query:     url.Values{"x": {"1"}},
		Header:    Bearer("tok"),
		JSON:      map[string]string{"name": "hello"},
		Operation: "create thing",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "t1", out.ID)
}

func TestClient_Form(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "golang", r.PostForm.Get("sr"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient("reddit", srv.URL, nil, nil)
	var out map[string]any
	err := c.Do(context.Background(), Request{Method: "POST", Path: "/submit", Form: url.Values{"sr": {"golang"}}}, &out)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Missing Access","code":50001}`))
	}))
	defer srv.Close()

	c := NewClient("discord", srv.URL, nil, nil)
	err := c.Do(context.Background(), Request{Method: "GET", Path: "/x", Operation: "send message"}, nil)

	var ue *areaserrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusForbidden, ue.StatusCode)
	assert.Equal(t, "discord", ue.Service)
	assert.Contains(t, err.Error(), "Missing Access")
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.False(t, ue.IsRetryable())
}
