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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/areas/internal/integration/discord"
	"github.com/tombee/areas/internal/integration/gmail"
	"github.com/tombee/areas/internal/integration/reddit"
	"github.com/tombee/areas/internal/integration/spotify"
	"github.com/tombee/areas/internal/integration/trello"
	"github.com/tombee/areas/internal/integration/twitch"
)

// Reaction component names.
const (
	SendEmail        = "send_email"
	FakeEmail        = "fake_email"
	SendMessage      = "send_message"
	ReactToMessage   = "react_to_message"
	SendGmail        = "send_gmail"
	SendChatMessage  = "send_chat_message"
	CreateRedditPost = "create_reddit_post"
	AddToPlaylist    = "add_to_playlist"
	AddToQueue       = "add_to_queue"
	CreateCard       = "create_card"
	MoveCard         = "move_card"
)

// Service names used for token lookups.
const (
	serviceGmail   = "gmail"
	serviceReddit  = "reddit"
	serviceSpotify = "spotify"
	serviceTrello  = "trello"
	serviceTwitch  = "twitch"
)

// Clients are the integrations the handlers call. A nil client makes its
// reactions fail with a "not configured" message.
type Clients struct {
	Email   Sender
	Discord *discord.Client
	Gmail   *gmail.Client
	Reddit  *reddit.Client
	Spotify *spotify.Client
	Trello  *trello.Client
	Twitch  *twitch.Client
}

// RegisterAll registers every built-in reaction on d.
func RegisterAll(d *Dispatcher, r *Runner, c Clients) {
	d.Register(SendEmail, r.Handler(SendEmail, sendEmail(c.Email)))
	d.Register(FakeEmail, r.Handler(FakeEmail, fakeEmail(r.logger)))
	d.Register(SendMessage, r.Handler(SendMessage, sendDiscordMessage(c.Discord)))
	d.Register(ReactToMessage, r.Handler(ReactToMessage, reactToDiscordMessage(c.Discord)))
	d.Register(SendGmail, r.Handler(SendGmail, sendGmail(c.Gmail)))
	d.Register(SendChatMessage, r.Handler(SendChatMessage, sendTwitchChat(c.Twitch)))
	d.Register(CreateRedditPost, r.Handler(CreateRedditPost, createRedditPost(c.Reddit)))
	d.Register(AddToPlaylist, r.Handler(AddToPlaylist, addToPlaylist(c.Spotify)))
	d.Register(AddToQueue, r.Handler(AddToQueue, addToQueue(c.Spotify)))
	d.Register(CreateCard, r.Handler(CreateCard, createTrelloCard(c.Trello)))
	d.Register(MoveCard, r.Handler(MoveCard, moveTrelloCard(c.Trello)))
}

func notConfigured(integration string) error {
	return fmt.Errorf("%s integration is not configured", integration)
}

func sendEmail(sender Sender) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if sender == nil {
			return nil, notConfigured("email")
		}
		if err := call.Params.Require("to", "subject"); err != nil {
			return nil, err
		}
		e := Email{
			To:      call.Params.String("to", ""),
			Subject: call.Params.String("subject", ""),
			Body:    call.Params.String("body", ""),
		}
		if err := sender.Send(ctx, e); err != nil {
			return nil, fmt.Errorf("send email: %w", err)
		}
		return map[string]any{
			"email_recipient": e.To,
			"subject":         e.Subject,
			"sent_at":         time.Now().UTC().Format(time.RFC3339),
		}, nil
	}
}

// fakeEmail records what would have been sent without contacting a relay.
func fakeEmail(logger *slog.Logger) Func {
	return func(_ context.Context, call *Call) (map[string]any, error) {
		to := call.Params.String("to", "")
		subject := call.Params.String("subject", "")
		logger.Info("fake email",
			slog.String("area_id", call.Area.ID),
			slog.String("to", to),
			slog.String("subject", subject))
		return map[string]any{
			"email_recipient": to,
			"subject":         subject,
			"simulated":       true,
		}, nil
	}
}

func sendDiscordMessage(client *discord.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("discord")
		}
		if err := call.Params.Require("channel_id", "message"); err != nil {
			return nil, err
		}
		channel := call.Params.String("channel_id", "")
		msg, err := client.SendMessage(ctx, channel, call.Params.String("message", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"message_id":  msg.ID,
			"channel_id":  channel,
			"message_url": discord.MessageURL(call.Params.String("guild_id", ""), channel, msg.ID),
		}, nil
	}
}

func reactToDiscordMessage(client *discord.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("discord")
		}
		if err := call.Params.Require("channel_id", "message_id", "emoji"); err != nil {
			return nil, err
		}
		channel := call.Params.String("channel_id", "")
		msgID := call.Params.String("message_id", "")
		emoji := call.Params.String("emoji", "")
		if err := client.AddReaction(ctx, channel, msgID, emoji); err != nil {
			return nil, err
		}
		return map[string]any{
			"channel_id": channel,
			"message_id": msgID,
			"emoji":      emoji,
		}, nil
	}
}

func sendGmail(client *gmail.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("gmail")
		}
		if err := call.Params.Require("to", "subject"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceGmail)
		if err != nil {
			return nil, err
		}
		to := call.Params.String("to", "")
		ref, err := client.Send(ctx, token, to, call.Params.String("subject", ""), call.Params.String("body", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"message_id":      ref.ID,
			"thread_id":       ref.ThreadID,
			"email_recipient": to,
		}, nil
	}
}

func sendTwitchChat(client *twitch.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("twitch")
		}
		if err := call.Params.Require("channel", "message"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceTwitch)
		if err != nil {
			return nil, err
		}
		sender, err := client.GetUser(ctx, token, "")
		if err != nil {
			return nil, fmt.Errorf("resolve sender: %w", err)
		}
		channel := call.Params.String("channel", "")
		broadcaster, err := client.GetUser(ctx, token, channel)
		if err != nil {
			return nil, fmt.Errorf("resolve channel %s: %w", channel, err)
		}
		msg, err := client.SendChatMessage(ctx, token, broadcaster.ID, sender.ID, call.Params.String("message", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"message_id":     msg.MessageID,
			"channel":        broadcaster.Login,
			"broadcaster_id": broadcaster.ID,
			"sender":         sender.Login,
		}, nil
	}
}

func createRedditPost(client *reddit.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("reddit")
		}
		if err := call.Params.Require("subreddit", "title"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceReddit)
		if err != nil {
			return nil, err
		}
		sub := call.Params.String("subreddit", "")
		post, err := client.Submit(ctx, token, sub, call.Params.String("title", ""), call.Params.String("text", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"post_id":   post.ID,
			"post_name": post.Name,
			"post_url":  post.URL,
			"subreddit": sub,
		}, nil
	}
}

func addToPlaylist(client *spotify.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("spotify")
		}
		if err := call.Params.Require("playlist_id", "track_uri"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceSpotify)
		if err != nil {
			return nil, err
		}
		var uris []string
		for _, t := range call.Params.List("track_uri") {
			uris = append(uris, spotify.TrackURI(t))
		}
		playlist := call.Params.String("playlist_id", "")
		snapshot, err := client.AddToPlaylist(ctx, token, playlist, uris)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"playlist_id": playlist,
			"snapshot_id": snapshot,
			"track_uris":  uris,
		}, nil
	}
}

func addToQueue(client *spotify.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("spotify")
		}
		if err := call.Params.Require("track_uri"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceSpotify)
		if err != nil {
			return nil, err
		}
		uri := spotify.TrackURI(call.Params.String("track_uri", ""))
		device := call.Params.String("device_id", "")
		if err := client.AddToQueue(ctx, token, uri, device); err != nil {
			return nil, err
		}
		result := map[string]any{"track_uri": uri}
		if device != "" {
			result["device_id"] = device
		}
		return result, nil
	}
}

func createTrelloCard(client *trello.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("trello")
		}
		if err := call.Params.Require("list_id", "name"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceTrello)
		if err != nil {
			return nil, err
		}
		card, err := client.CreateCard(ctx, token, call.Params.String("list_id", ""),
			call.Params.String("name", ""), call.Params.String("description", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"card_id":   card.ID,
			"card_name": card.Name,
			"card_url":  card.ShortURL,
			"list_id":   card.IDList,
		}, nil
	}
}

func moveTrelloCard(client *trello.Client) Func {
	return func(ctx context.Context, call *Call) (map[string]any, error) {
		if client == nil {
			return nil, notConfigured("trello")
		}
		if err := call.Params.Require("card_id", "list_id"); err != nil {
			return nil, err
		}
		token, err := call.Token(ctx, serviceTrello)
		if err != nil {
			return nil, err
		}
		card, err := client.MoveCard(ctx, token, call.Params.String("card_id", ""), call.Params.String("list_id", ""))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"card_id":  card.ID,
			"list_id":  card.IDList,
			"card_url": card.ShortURL,
		}, nil
	}
}
