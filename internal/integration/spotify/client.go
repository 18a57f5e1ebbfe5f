// Package spotify is a minimal Spotify Web API client for the
// add_to_playlist and add_to_queue reactions.
package spotify

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tombee/areas/internal/integration"
)

// DefaultBaseURL is the Web API endpoint.
const DefaultBaseURL = "https://api.spotify.com/v1"

// Client calls the Spotify Web API.
type Client struct {
	api *integration.Client
}

// New creates a client.
func New(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: integration.NewClient("spotify", baseURL, hc, nil)}
}

// TrackURI normalizes a track id, URI or open.spotify.com link to a
// spotify:track: URI.
func TrackURI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "spotify:") {
		return s
	}
	if u, err := url.Parse(s); err == nil && u.Host == "open.spotify.com" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 && parts[len(parts)-2] == "track" {
			return "spotify:track:" + parts[len(parts)-1]
		}
	}
	return "spotify:track:" + s
}

// AddToPlaylist appends tracks and returns the playlist snapshot id.
func (c *Client) AddToPlaylist(ctx context.Context, token, playlistID string, uris []string) (string, error) {
	var resp struct {
		SnapshotID string `json:"snapshot_id"`
	}
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodPost,
		Path:      "/playlists/" + url.PathEscape(playlistID) + "/tracks",
		JSON:      map[string][]string{"uris": uris},
		Header:    integration.Bearer(token),
		Operation: "add to playlist",
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SnapshotID, nil
}

// AddToQueue queues a track on the user's active (or given) device.
func (c *Client) AddToQueue(ctx context.Context, token, uri, deviceID string) error {
	q := url.Values{"uri": {uri}}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return c.api.Do(ctx, integration.Request{
		Method:    http.MethodPost,
		Path:      "/me/player/queue",
		Query:     q,
		Header:    integration.Bearer(token),
		Operation: "add to queue",
	}, nil)
}
