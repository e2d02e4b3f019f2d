// Package tokenstore persists the session token across client restarts.
//
// The token lives in the single row of the local session table; an absent
// row means nobody is logged in.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/quickchat/internal/dbx"
)

// Store satisfies services.TokenStore and client.TokenSource.
type Store struct {
	db dbx.DBTX
}

func New(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// Load returns the persisted token or "" when none is stored.
func (s *Store) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM session WHERE id = 1`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session token: %w", err)
	}
	return token, nil
}

// Save replaces the stored token.
func (s *Store) Save(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, token) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token
	`, token)
	if err != nil {
		return fmt.Errorf("failed to save session token: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}

// Token is Load under the name client.TokenSource expects.
func (s *Store) Token(ctx context.Context) (string, error) {
	return s.Load(ctx)
}
