// ABOUTME: API token persistence for the SQLite store
// ABOUTME: Tokens are stored as SHA-256 hashes only; usage stats update best-effort

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tokenColumns = `id, user_id, name, token_hash, prefix, is_active, expires_at, last_used_at, usage_count, created_at`

// CreateAPIToken inserts a new API token record. Returns ErrDuplicate when
// the hash collides with an existing token.
func (s *SQLiteStore) CreateAPIToken(ctx context.Context, t *APIToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_tokens (user_id, name, token_hash, prefix, is_active, expires_at, last_used_at, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		t.UserID,
		t.Name,
		t.TokenHash,
		t.Prefix,
		t.IsActive,
		formatTimePtr(t.ExpiresAt),
		formatTimePtr(t.LastUsedAt),
		t.UsageCount,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("api token %s: %w", t.Prefix, ErrDuplicate)
		}
		return fmt.Errorf("inserting api token: %w", err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading token id: %w", err)
	}
	return nil
}

// GetAPIToken returns the token record with the given id.
func (s *SQLiteStore) GetAPIToken(ctx context.Context, id int64) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE id = ?`, id)
	return s.scanToken(row.Scan)
}

// GetAPITokenByHash resolves a bearer credential hash to its token record.
func (s *SQLiteStore) GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = ?`, hash)
	return s.scanToken(row.Scan)
}

// ListAPITokens returns all tokens belonging to userID, newest first.
func (s *SQLiteStore) ListAPITokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		t, err := s.scanToken(rows.Scan)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteAPIToken removes a token record, revoking the credential.
func (s *SQLiteStore) DeleteAPIToken(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting api token: %w", err)
	}
	return requireRowAffected(res)
}

// RecordAPITokenUse bumps last_used_at and usage_count. Callers treat
// failures as non-fatal.
func (s *SQLiteStore) RecordAPITokenUse(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = ?, usage_count = usage_count + 1 WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("recording token use: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) scanToken(scan func(dest ...any) error) (*APIToken, error) {
	var t APIToken
	var expiresAt, lastUsedAt sql.NullString
	var createdAt string

	err := scan(
		&t.ID,
		&t.UserID,
		&t.Name,
		&t.TokenHash,
		&t.Prefix,
		&t.IsActive,
		&expiresAt,
		&lastUsedAt,
		&t.UsageCount,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api token: %w", err)
	}

	t.ExpiresAt = s.parseTimePtr(expiresAt, "api_tokens.expires_at")
	t.LastUsedAt = s.parseTimePtr(lastUsedAt, "api_tokens.last_used_at")
	t.CreatedAt = s.parseTime(createdAt, "api_tokens.created_at")
	return &t, nil
}
