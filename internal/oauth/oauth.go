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

// Package oauth hands out access tokens for linked user accounts,
// refreshing them through golang.org/x/oauth2 before they expire.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// ProviderConfig describes one OAuth provider's token endpoint.
type ProviderConfig struct {
	// Service is the catalog service name (e.g., "spotify").
	Service string

	ClientID     string
	ClientSecret string
	TokenURL     string

	// RefreshBuffer refreshes tokens this long before they expire.
	RefreshBuffer time.Duration

	// AuthStyle selects how client credentials are sent. Zero auto-detects.
	AuthStyle oauth2.AuthStyle
}

// Config contains Manager dependencies.
type Config struct {
	Tokens    store.TokenStore
	Providers []ProviderConfig

	// HTTPClient is used for token endpoint calls.
	HTTPClient *http.Client

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Manager is the token provider used by reaction handlers and pollers.
type Manager struct {
	tokens     store.TokenStore
	providers  map[string]ProviderConfig
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
	group      singleflight.Group
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Service] = p
	}

	return &Manager{
		tokens:     cfg.Tokens,
		providers:  providers,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		logger:     cfg.Logger.With(slog.String("component", "oauth")),
	}
}

// AccessToken returns a usable access token for the user's linked account,
// refreshing it first when it is expired or inside the provider's buffer.
func (m *Manager) AccessToken(ctx context.Context, userID, service string) (string, error) {
	tok, err := m.tokens.GetToken(ctx, userID, service)
	if err != nil {
		if areaserrors.IsNotFound(err) {
			return "", &areaserrors.TokenError{UserID: userID, Service: service, Reason: "no linked account"}
		}
		return "", fmt.Errorf("load %s token: %w", service, err)
	}

	if !m.needsRefresh(tok, service) {
		return tok.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx, tok, userID, service)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh forces a token refresh.
func (m *Manager) Refresh(ctx context.Context, userID, service string) (*store.UserToken, error) {
	tok, err := m.tokens.GetToken(ctx, userID, service)
	if err != nil {
		if areaserrors.IsNotFound(err) {
			return nil, &areaserrors.TokenError{UserID: userID, Service: service, Reason: "no linked account"}
		}
		return nil, fmt.Errorf("load %s token: %w", service, err)
	}
	return m.refresh(ctx, tok, userID, service)
}

func (m *Manager) needsRefresh(tok *store.UserToken, service string) bool {
	if tok.ExpiresAt == nil {
		return false
	}
	buffer := m.providers[service].RefreshBuffer
	return !m.now().Before(tok.ExpiresAt.Add(-buffer))
}

func (m *Manager) refresh(ctx context.Context, tok *store.UserToken, userID, service string) (*store.UserToken, error) {
	provider, ok := m.providers[service]
	if !ok || provider.TokenURL == "" {
		return nil, &areaserrors.TokenError{UserID: userID, Service: service, Reason: "token expired and no refresh endpoint is configured"}
	}
	if tok.RefreshToken == "" {
		return nil, &areaserrors.TokenError{UserID: userID, Service: service, Reason: "token expired and no refresh token is stored"}
	}

	// Concurrent callers for the same account share one refresh.
	v, err, _ := m.group.Do(userID+"/"+service, func() (any, error) {
		return m.exchange(ctx, provider, tok)
	})
	if err != nil {
		m.logger.Warn("token refresh failed",
			slog.String("service", service),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, &areaserrors.TokenError{UserID: userID, Service: service, Reason: "refresh failed", Cause: err}
	}

	m.logger.Debug("token refreshed",
		slog.String("service", service),
		slog.String("user_id", userID))
	return v.(*store.UserToken), nil
}

func (m *Manager) exchange(ctx context.Context, provider ProviderConfig, tok *store.UserToken) (*store.UserToken, error) {
	conf := &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  provider.TokenURL,
			AuthStyle: provider.AuthStyle,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	fresh, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &areaserrors.UpstreamError{
				Service:    provider.Service,
				Operation:  "token refresh",
				StatusCode: re.Response.StatusCode,
				Body:       string(re.Body),
			}
		}
		return nil, err
	}

	updated := *tok
	updated.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		updated.RefreshToken = fresh.RefreshToken
	}
	if !fresh.Expiry.IsZero() {
		exp := fresh.Expiry.UTC()
		updated.ExpiresAt = &exp
	} else {
		updated.ExpiresAt = nil
	}
	if scope, ok := fresh.Extra("scope").(string); ok && scope != "" {
		updated.Scope = scope
	}
	updated.UpdatedAt = m.now().UTC()

	if err := m.tokens.SaveToken(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save refreshed token: %w", err)
	}
	return &updated, nil
}
