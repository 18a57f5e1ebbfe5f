// Package trello is a minimal Trello REST client. Requests authenticate with
// the application key and the user's token as query parameters.
package trello

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tombee/areas/internal/integration"
)

// DefaultBaseURL is the Trello REST API v1 endpoint.
const DefaultBaseURL = "https://api.trello.com/1"

// Board action filters used by the triggers.
const (
	FilterCreateCard = "createCard"
	FilterCardMoved  = "updateCard:idList"
)

// Client calls the Trello API.
type Client struct {
	api *integration.Client
	key string
}

// New creates a client for the given application key.
func New(baseURL, apiKey string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: integration.NewClient("trello", baseURL, hc, nil), key: apiKey}
}

func (c *Client) auth(token string, extra url.Values) url.Values {
	q := url.Values{"key": {c.key}, "token": {token}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

// Card is a Trello card.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	IDList   string `json:"idList"`
	IDBoard  string `json:"idBoard"`
	ShortURL string `json:"shortUrl"`
	URL      string `json:"url"`
}

// Action is a board activity entry.
type Action struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Date time.Time `json:"date"`
	Data struct {
		Card struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"card"`
		List struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"list"`
		ListBefore struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"listBefore"`
		ListAfter struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"listAfter"`
	} `json:"data"`
	MemberCreator struct {
		Username string `json:"username"`
	} `json:"memberCreator"`
}

// BoardActions returns the newest board actions matching filter, newest first.
func (c *Client) BoardActions(ctx context.Context, token, boardID, filter string, limit int) ([]Action, error) {
	var actions []Action
	err := c.api.Do(ctx, integration.Request{
		Method: http.MethodGet,
		Path:   "/boards/" + url.PathEscape(boardID) + "/actions",
		Query: c.auth(token, url.Values{
			"filter": {filter},
			"limit":  {strconv.Itoa(limit)},
		}),
		Operation: "list board actions",
	}, &actions)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// CreateCard adds a card at the bottom of a list.
func (c *Client) CreateCard(ctx context.Context, token, listID, name, desc string) (*Card, error) {
	var card Card
	err := c.api.Do(ctx, integration.Request{
		Method: http.MethodPost,
		Path:   "/cards",
		Query: c.auth(token, url.Values{
			"idList": {listID},
			"name":   {name},
			"desc":   {desc},
			"pos":    {"bottom"},
		}),
		Operation: "create card",
	}, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// MoveCard moves a card to another list.
func (c *Client) MoveCard(ctx context.Context, token, cardID, listID string) (*Card, error) {
	var card Card
	err := c.api.Do(ctx, integration.Request{
		Method:    http.MethodPut,
		Path:      "/cards/" + url.PathEscape(cardID),
		Query:     c.auth(token, url.Values{"idList": {listID}}),
		Operation: "move card",
	}, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}
