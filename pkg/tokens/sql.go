package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/apilogin/pkg/storage"
)

// Table is the login token table name
const Table = "apilogin_tokens"

// SQLStore implements Store on a SQL database.
// A unique index on userid enforces one live token per user.
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore creates a new SQL-backed token store
func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Issue upserts the user's token
func (s *SQLStore) Issue(ctx context.Context, t *LoginToken) error {
	query := s.db.Rebind(`
		INSERT INTO apilogin_tokens (token, userid, useragent, expires, redirect)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (userid) DO UPDATE SET
			token = excluded.token,
			useragent = excluded.useragent,
			expires = excluded.expires,
			redirect = excluded.redirect
	`)

	_, err := s.db.ExecContext(ctx, query,
		t.Token, t.UserID, t.UserAgent, t.Expires.Unix(), t.Redirect)
	if err != nil {
		return fmt.Errorf("failed to issue login token: %w", err)
	}
	return nil
}

// Claim deletes the token row and returns what it held
func (s *SQLStore) Claim(ctx context.Context, token string) (*LoginToken, error) {
	query := s.db.Rebind(`
		DELETE FROM apilogin_tokens
		WHERE token = $1
		RETURNING userid, useragent, expires, redirect
	`)

	var (
		t        = LoginToken{Token: token}
		expires  int64
		redirect sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(&t.UserID, &t.UserAgent, &expires, &redirect)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim login token: %w", err)
	}

	t.Expires = time.Unix(expires, 0)
	t.Redirect = redirect.String
	return &t, nil
}

// Purge deletes expired rows
func (s *SQLStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	query := s.db.Rebind("DELETE FROM apilogin_tokens WHERE expires <= $1")

	result, err := s.db.ExecContext(ctx, query, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge login tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Schema returns the DDL creating the token table
func Schema(driver storage.Driver) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS apilogin_tokens (
	token VARCHAR(64) NOT NULL PRIMARY KEY,
	userid BIGINT NOT NULL,
	useragent TEXT NOT NULL,
	expires BIGINT NOT NULL,
	redirect TEXT
)`,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_apilogin_tokens_userid ON apilogin_tokens (userid)",
		"CREATE INDEX IF NOT EXISTS idx_apilogin_tokens_expires ON apilogin_tokens (expires)",
	}
}
