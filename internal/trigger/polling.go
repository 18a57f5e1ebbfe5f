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

package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/integration/gmail"
	"github.com/tombee/areas/internal/integration/reddit"
	"github.com/tombee/areas/internal/integration/trello"
	"github.com/tombee/areas/internal/integration/twitch"
	"github.com/tombee/areas/internal/params"
	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// Polling action names.
const (
	GmailNewEmail    = "gmail_new_email"
	RedditHotPost    = "reddit_hot_post"
	TrelloNewCard    = "trello_new_card"
	TrelloCardMoved  = "trello_card_moved"
	TwitchStreamLive = "twitch_stream_live"
)

// Service names used to look up the Area owner's token.
const (
	ServiceGmail  = "gmail"
	ServiceReddit = "reddit"
	ServiceTrello = "trello"
	ServiceTwitch = "twitch"
)

const (
	// cursorNone records that the source had nothing to observe.
	cursorNone = "none"

	// cursorOffline is the Twitch cursor while the channel is not live.
	cursorOffline = "offline"

	trelloMovedScan = 20
)

// observation is what one poll saw. Data is nil when the observed state
// is not something to fire on (an offline stream, an empty mailbox).
type observation struct {
	key    string
	cursor string
	data   map[string]any
}

type fetchFunc func(ctx context.Context, area *store.Area, p params.Values, token string) (*observation, error)

// poller is the shared change-detection loop: fetch the newest item,
// compare its identity with the stored cursor, always store the new cursor,
// and fire only when a previous cursor existed and differs.
type poller struct {
	deps    Deps
	tokens  TokenSource
	name    string
	service string
	fetch   fetchFunc
}

func (p *poller) Name() string { return p.name }

func (p *poller) Evaluate(ctx context.Context, area *store.Area, now time.Time) (*Fire, error) {
	values, err := p.deps.actionParams(ctx, area)
	if err != nil {
		return nil, err
	}
	token, err := p.tokens.AccessToken(ctx, area.UserID, p.service)
	if err != nil {
		return nil, err
	}
	obs, err := p.fetch(ctx, area, values, token)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", p.name, err)
	}

	prev, found, err := p.deps.States.Get(ctx, area.ID, obs.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", obs.key, err)
	}
	if err := p.deps.States.SetChecked(ctx, area.ID, obs.key, obs.cursor, now); err != nil {
		return nil, fmt.Errorf("write %s: %w", obs.key, err)
	}

	if !found {
		p.deps.logger().Debug("baseline recorded",
			slog.String("area_id", area.ID),
			slog.String("trigger", p.name),
			slog.String("cursor", obs.cursor))
		return nil, nil
	}
	if prev == obs.cursor || obs.data == nil {
		return nil, nil
	}

	data := map[string]any{
		"trigger":      p.name,
		"triggered_at": now.UTC().Format(time.RFC3339),
	}
	for k, v := range obs.data {
		data[k] = v
	}
	return &Fire{TriggerData: data, OccurrenceKey: obs.key}, nil
}

// NewGmailNewEmail fires when the newest inbox message (optionally
// matching parameter "query") changes.
func NewGmailNewEmail(deps Deps, tokens TokenSource, client *gmail.Client) Evaluator {
	return &poller{
		deps:    deps,
		tokens:  tokens,
		name:    GmailNewEmail,
		service: ServiceGmail,
		fetch: func(ctx context.Context, area *store.Area, p params.Values, token string) (*observation, error) {
			obs := &observation{key: hookstate.GmailCursorKey(area.ID), cursor: cursorNone}
			msg, err := client.LatestMessage(ctx, token, p.String("query", ""))
			if err != nil || msg == nil {
				return obs, err
			}
			obs.cursor = msg.ID
			obs.data = map[string]any{
				"email_id":      msg.ID,
				"email_from":    msg.From,
				"email_subject": msg.Subject,
				"email_snippet": msg.Snippet,
				"thread_id":     msg.ThreadID,
			}
			return obs, nil
		},
	}
}

// NewRedditHotPost fires when the top non-stickied hot post of parameter
// "subreddit" changes.
func NewRedditHotPost(deps Deps, tokens TokenSource, client *reddit.Client) Evaluator {
	return &poller{
		deps:    deps,
		tokens:  tokens,
		name:    RedditHotPost,
		service: ServiceReddit,
		fetch: func(ctx context.Context, area *store.Area, p params.Values, token string) (*observation, error) {
			if err := p.Require("subreddit"); err != nil {
				return nil, err
			}
			sub := p.String("subreddit", "")
			obs := &observation{key: hookstate.RedditHotPostKey(area.ID, sub), cursor: cursorNone}
			post, err := client.TopHotPost(ctx, token, sub)
			if err != nil || post == nil {
				return obs, err
			}
			obs.cursor = post.ID
			obs.data = map[string]any{
				"post_id":       post.ID,
				"post_title":    post.Title,
				"post_author":   post.Author,
				"post_url":      "https://www.reddit.com" + post.Permalink,
				"post_score":    post.Score,
				"post_comments": post.NumComments,
				"subreddit":     post.Subreddit,
			}
			return obs, nil
		},
	}
}

// NewTrelloNewCard fires when a card is created on parameter "board_id".
func NewTrelloNewCard(deps Deps, tokens TokenSource, client *trello.Client) Evaluator {
	return &poller{
		deps:    deps,
		tokens:  tokens,
		name:    TrelloNewCard,
		service: ServiceTrello,
		fetch: func(ctx context.Context, area *store.Area, p params.Values, token string) (*observation, error) {
			if err := p.Require("board_id"); err != nil {
				return nil, err
			}
			board := p.String("board_id", "")
			obs := &observation{key: hookstate.TrelloNewCardKey(area.ID, board), cursor: cursorNone}
			actions, err := client.BoardActions(ctx, token, board, trello.FilterCreateCard, 1)
			if err != nil || len(actions) == 0 {
				return obs, err
			}
			a := actions[0]
			obs.cursor = a.ID
			obs.data = map[string]any{
				"card_id":    a.Data.Card.ID,
				"card_name":  a.Data.Card.Name,
				"list_id":    a.Data.List.ID,
				"list_name":  a.Data.List.Name,
				"created_by": a.MemberCreator.Username,
				"board_id":   board,
			}
			return obs, nil
		},
	}
}

// NewTrelloCardMoved fires when a card on parameter "board_id" moves
// between lists, optionally only into "to_list_id".
func NewTrelloCardMoved(deps Deps, tokens TokenSource, client *trello.Client) Evaluator {
	return &poller{
		deps:    deps,
		tokens:  tokens,
		name:    TrelloCardMoved,
		service: ServiceTrello,
		fetch: func(ctx context.Context, area *store.Area, p params.Values, token string) (*observation, error) {
			if err := p.Require("board_id"); err != nil {
				return nil, err
			}
			board := p.String("board_id", "")
			target := p.String("to_list_id", "")
			obs := &observation{key: hookstate.TrelloCardMovedKey(area.ID, board), cursor: cursorNone}
			actions, err := client.BoardActions(ctx, token, board, trello.FilterCardMoved, trelloMovedScan)
			if err != nil {
				return obs, err
			}
			for _, a := range actions {
				if a.Data.ListAfter.ID == "" || (target != "" && a.Data.ListAfter.ID != target) {
					continue
				}
				obs.cursor = a.ID
				obs.data = map[string]any{
					"card_id":        a.Data.Card.ID,
					"card_name":      a.Data.Card.Name,
					"from_list_id":   a.Data.ListBefore.ID,
					"from_list_name": a.Data.ListBefore.Name,
					"to_list_id":     a.Data.ListAfter.ID,
					"to_list_name":   a.Data.ListAfter.Name,
					"moved_by":       a.MemberCreator.Username,
					"board_id":       board,
				}
				break
			}
			return obs, nil
		},
	}
}

// NewTwitchStreamLive fires when parameter "channel" goes live. The
// cursor is the stream id, so a new broadcast fires again.
func NewTwitchStreamLive(deps Deps, tokens TokenSource, client *twitch.Client) Evaluator {
	return &poller{
		deps:    deps,
		tokens:  tokens,
		name:    TwitchStreamLive,
		service: ServiceTwitch,
		fetch: func(ctx context.Context, area *store.Area, p params.Values, token string) (*observation, error) {
			channel, ok := p.Get("channel")
			if !ok {
				return nil, &areaserrors.ValidationError{Field: "channel", Message: "is required"}
			}
			obs := &observation{key: hookstate.TwitchLiveKey(area.ID, channel), cursor: cursorOffline}
			stream, err := client.GetStream(ctx, token, channel)
			if err != nil || stream == nil {
				return obs, err
			}
			obs.cursor = stream.ID
			obs.data = map[string]any{
				"stream_id":    stream.ID,
				"channel":      stream.UserLogin,
				"streamer":     stream.UserName,
				"stream_title": stream.Title,
				"game_name":    stream.GameName,
				"viewer_count": stream.ViewerCount,
				"started_at":   stream.StartedAt.UTC().Format(time.RFC3339),
			}
			return obs, nil
		},
	}
}
