// Package reddit is a minimal Reddit OAuth API client for the
// reddit_hot_post trigger and the create_reddit_post reaction.
package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tombee/areas/internal/integration"
)

// DefaultBaseURL is the OAuth API host.
const DefaultBaseURL = "https://oauth.reddit.com"

// Client calls the Reddit API. Reddit rejects requests without a
// descriptive User-Agent.
type Client struct {
	api *integration.Client
}

// New creates a client.
func New(baseURL, userAgent string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	header := http.Header{}
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}
	return &Client{api: integration.NewClient("reddit", baseURL, hc, header)}
}

// Post is a listing entry.
type Post struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Stickied    bool    `json:"stickied"`
	CreatedUTC  float64 `json:"created_utc"`
}

type listing struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// HotPosts returns up to limit hot posts of a subreddit in listing order.
func (c *Client) HotPosts(ctx context.Context, token, subreddit string, limit int) ([]Post, error) {
	var l listing
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodGet,
		Path:      "/r/" + url.PathEscape(subreddit) + "/hot",
		Query:     url.Values{"limit": {strconv.Itoa(limit)}, "raw_json": {"1"}},
		Header:    integration.Bearer(token),
		Operation: "list hot posts",
	}, &l)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		posts = append(posts, ch.Data)
	}
	return posts, nil
}

// TopHotPost returns the first non-stickied hot post, or nil.
func (c *Client) TopHotPost(ctx context.Context, token, subreddit string) (*Post, error) {
	posts, err := c.HotPosts(ctx, token, subreddit, 5)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if !posts[i].Stickied {
			return &posts[i], nil
		}
	}
	return nil, nil
}

// Submission is the result of a self post submission.
type Submission struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type submitResponse struct {
	JSON struct {
		Errors [][]any     `json:"errors"`
		Data   *Submission `json:"data"`
	} `json:"json"`
}

// Submit creates a self (text) post.
func (c *Client) Submit(ctx context.Context, token, subreddit, title, text string) (*Submission, error) {
	var resp submitResponse
	err := c.api.Do(ctx, integration.Request{
		Method: http.MethodPost,
		Path:   "/api/submit",
		Form: url.Values{
			"sr":       {subreddit},
			"kind":     {"self"},
			"title":    {title},
			"text":     {text},
			"api_type": {"json"},
		},
		Header:    integration.Bearer(token),
		Operation: "submit post",
	}, &resp)
	if err != nil {
		return nil, err
	}

	// Reddit reports validation failures with HTTP 200.
	if len(resp.JSON.Errors) > 0 {
		parts := make([]string, 0, len(resp.JSON.Errors))
		for _, e := range resp.JSON.Errors {
			parts = append(parts, fmt.Sprint(e...))
		}
		return nil, fmt.Errorf("reddit rejected submission: %s", strings.Join(parts, "; "))
	}
	if resp.JSON.Data == nil {
		return nil, fmt.Errorf("reddit returned no submission data")
	}
	return resp.JSON.Data, nil
}
