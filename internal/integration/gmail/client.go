// Package gmail is a minimal Gmail API client: newest message lookup for the
// gmail_new_email trigger and message send for the send_gmail reaction.
package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/tombee/areas/internal/integration"
)

// DefaultBaseURL is the Gmail API v1 endpoint.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client calls the Gmail API on behalf of a user.
type Client struct {
	api *integration.Client
}

// New creates a client.
func New(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: integration.NewClient("gmail", baseURL, hc, nil)}
}

// MessageRef identifies a message in a list response.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Message is a message fetched in metadata format.
type Message struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	From         string `json:"-"`
	Subject      string `json:"-"`
}

type listResponse struct {
	Messages []MessageRef `json:"messages"`
}

type messageResponse struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// LatestMessage returns the newest inbox message matching query, or nil
// when the mailbox has none.
func (c *Client) LatestMessage(ctx context.Context, token, query string) (*Message, error) {
	q := url.Values{"maxResults": {"1"}, "labelIds": {"INBOX"}}
	if query != "" {
		q.Set("q", query)
	}

	var list listResponse
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodGet,
		Path:      "/users/me/messages",
		Query:     q,
		Header:    integration.Bearer(token),
		Operation: "list messages",
	}, &list)
	if err != nil {
		return nil, err
	}
	if len(list.Messages) == 0 {
		return nil, nil
	}
	return c.GetMessage(ctx, token, list.Messages[0].ID)
}

// GetMessage fetches one message's From and Subject headers and snippet.
func (c *Client) GetMessage(ctx context.Context, token, id string) (*Message, error) {
	var resp messageResponse
	err := c.api.Do(ctx, integration.Request{
		Method: http.MethodGet,
		Path:   "/users/me/messages/" + url.PathEscape(id),
		Query: url.Values{
			"format":          {"metadata"},
			"metadataHeaders": {"From", "Subject"},
		},
		Header:    integration.Bearer(token),
		Operation: "get message",
	}, &resp)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID:           resp.ID,
		ThreadID:     resp.ThreadID,
		Snippet:      resp.Snippet,
		InternalDate: resp.InternalDate,
	}
	for _, h := range resp.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "subject":
			msg.Subject = h.Value
		}
	}
	return msg, nil
}

// Send sends a plain-text message and returns the created message reference.
func (c *Client) Send(ctx context.Context, token, to, subject, body string) (*MessageRef, error) {
	var ref MessageRef
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodPost,
		Path:      "/users/me/messages/send",
		Header:    integration.Bearer(token),
		JSON:      map[string]string{"raw": EncodeRaw(to, subject, body)},
		Operation: "send message",
	}, &ref)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// EncodeRaw builds an RFC 2822 message and encodes it as base64url.
func EncodeRaw(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
