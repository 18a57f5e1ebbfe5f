// Package discord is a minimal Discord REST client for the send_message
// and react_to_message reactions. Requests are authenticated as a bot.
package discord

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tombee/areas/internal/integration"
)

// DefaultBaseURL is the Discord REST API v10 endpoint.
const DefaultBaseURL = "https://discord.com/api/v10"

// Client calls the Discord API.
type Client struct {
	api *integration.Client
}

// New creates a client authenticated with a bot token.
func New(baseURL, botToken string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	header := http.Header{"Authorization": {"Bot " + botToken}}
	return &Client{api: integration.NewClient("discord", baseURL, hc, header)}
}

// SendMessage posts content to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (*Message, error) {
	var msg Message
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodPost,
		Path:      "/channels/" + url.PathEscape(channelID) + "/messages",
		JSON:      createMessage{Content: content},
		Operation: "send message",
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AddReaction reacts to a message as the bot. emoji is a unicode emoji or
// "name:id" for custom emoji.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return c.api.Do(ctx, integration.Request{
		Method: http.MethodPut,
		Path: "/channels/" + url.PathEscape(channelID) +
			"/messages/" + url.PathEscape(messageID) +
			"/reactions/" + url.PathEscape(emoji) + "/@me",
		Operation: "add reaction",
	}, nil)
}

// MessageURL returns the web link of a message.
func MessageURL(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}
