// Package twitch is a minimal Twitch Helix client for the twitch_stream_live
// trigger and the send_chat_message reaction.
package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tombee/areas/internal/integration"
)

// DefaultBaseURL is the Helix API endpoint.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// Client calls Helix. Every request carries the application's Client-Id.
type Client struct {
	api *integration.Client
}

// New creates a client.
func New(baseURL, clientID string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: integration.NewClient("twitch", baseURL, hc, http.Header{"Client-Id": {clientID}})}
}

// User is a Helix user.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Stream is a live stream.
type Stream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	UserName    string    `json:"user_name"`
	GameName    string    `json:"game_name"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

type dataResponse[T any] struct {
	Data []T `json:"data"`
}

// GetUser looks up a user by login. An empty login returns the token owner.
func (c *Client) GetUser(ctx context.Context, token, login string) (*User, error) {
	q := url.Values{}
	if login != "" {
		q.Set("login", login)
	}
	var resp dataResponse[User]
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodGet,
		Path:      "/users",
		Query:     q,
		Header:    integration.Bearer(token),
		Operation: "get user",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("twitch user %q not found", login)
	}
	return &resp.Data[0], nil
}

// GetStream returns the live stream of a channel, or nil when offline.
func (c *Client) GetStream(ctx context.Context, token, login string) (*Stream, error) {
	var resp dataResponse[Stream]
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodGet,
		Path:      "/streams",
		Query:     url.Values{"user_login": {login}},
		Header:    integration.Bearer(token),
		Operation: "get stream",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// ChatMessage is the result of sending a chat message.
type ChatMessage struct {
	MessageID  string `json:"message_id"`
	IsSent     bool   `json:"is_sent"`
	DropReason *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"drop_reason"`
}

// SendChatMessage posts message in the broadcaster's chat as sender.
func (c *Client) SendChatMessage(ctx context.Context, token, broadcasterID, senderID, message string) (*ChatMessage, error) {
	var resp dataResponse[ChatMessage]
	err := c.api.Do(ctx, integration.Request{
		Method: http.MethodPost,
		Path:   "/chat/messages",
		JSON: map[string]string{
			"broadcaster_id": broadcasterID,
			"sender_id":      senderID,
			"message":        message,
		},
		Header:    integration.Bearer(token),
		Operation: "send chat message",
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("twitch returned no chat message result")
	}
	msg := &resp.Data[0]
	if !msg.IsSent {
		reason := "unknown reason"
		if msg.DropReason != nil {
			reason = msg.DropReason.Code + ": " + msg.DropReason.Message
		}
		return nil, fmt.Errorf("twitch dropped chat message: %s", reason)
	}
	return msg, nil
}
