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

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

// GetToken returns a user's token for a service name.
func (s *Store) GetToken(ctx context.Context, userID, serviceName string) (*store.UserToken, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT t.user_id, t.service_id, t.access_token, t.refresh_token, t.expires_at, t.scope, t.updated_at
		FROM user_tokens t
		JOIN services s ON s.id = t.service_id
		WHERE t.user_id = ? AND s.name = ?`), userID, serviceName)

	var tok store.UserToken
	var expires sql.NullInt64
	var updated int64
	err := row.Scan(&tok.UserID, &tok.ServiceID, &tok.AccessToken, &tok.RefreshToken, &expires, &tok.Scope, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "token", ID: userID + "/" + serviceName}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	tok.ExpiresAt = fromNullMillis(expires)
	tok.UpdatedAt = fromMillis(updated)
	return &tok, nil
}

// SaveToken upserts a token on (user_id, service_id).
func (s *Store) SaveToken(ctx context.Context, tok *store.UserToken) error {
	tok.UpdatedAt = store.OrNow(tok.UpdatedAt)
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_tokens (user_id, service_id, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, service_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at`),
		tok.UserID, tok.ServiceID, tok.AccessToken, tok.RefreshToken, nullMillis(tok.ExpiresAt), tok.Scope, millis(tok.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}
