package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hotListing = `{"data":{"children":[
	{"data":{"id":"s1","name":"t3_s1","title":"Weekly thread","stickied":true}},
	{"data":{"id":"p1","name":"t3_p1","title":"Go 1.25 released","author":"gopher","permalink":"/r/golang/comments/p1/","score":900}},
	{"data":{"id":"p2","name":"t3_p2","title":"Second"}}
]}}`

func TestTopHotPost_SkipsStickied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/hot", r.URL.Path)
		assert.Equal(t, "areas-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(hotListing))
	}))
	defer srv.Close()

	post, err := New(srv.URL, "areas-test/1.0", srv.Client()).TopHotPost(context.Background(), "tok", "golang")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "p1", post.ID)
	assert.Equal(t, "gopher", post.Author)
	assert.Equal(t, 900, post.Score)
}

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "self", r.PostForm.Get("kind"))
		assert.Equal(t, "golang", r.PostForm.Get("sr"))
		assert.Equal(t, "json", r.PostForm.Get("api_type"))
		w.Write([]byte(`{"json":{"errors":[],"data":{"id":"abc","name":"t3_abc","url":"https://reddit.com/r/golang/comments/abc/"}}}`))
	}))
	defer srv.Close()

	sub, err := New(srv.URL, "ua", srv.Client()).Submit(context.Background(), "tok", "golang", "Title", "Body")
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", sub.Name)
	assert.Contains(t, sub.URL, "/comments/abc/")
}

func TestSubmit_ValidationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"json":{"errors":[["SUBREDDIT_NOEXIST","that subreddit doesn't exist","sr"]]}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "ua", srv.Client()).Submit(context.Background(), "tok", "nope", "t", "b")
	assert.ErrorContains(t, err, "SUBREDDIT_NOEXIST")
}
