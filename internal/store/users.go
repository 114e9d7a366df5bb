// ABOUTME: User persistence for the SQLite store
// ABOUTME: Lookup by id, email, or OAuth provider identity

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, email, password_hash, provider, provider_user_id, name, role, status, created_at, updated_at`

// CreateUser inserts a new user. Returns ErrDuplicate when the email or the
// provider identity is already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}

	query := `
		INSERT INTO users (email, password_hash, provider, provider_user_id, name, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		u.Email,
		u.PasswordHash,
		u.Provider,
		u.ProviderUserID,
		u.Name,
		u.Role,
		u.Status,
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return s.scanUser(row)
}

// GetUserByEmail returns the user registered under email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return s.scanUser(row)
}

// GetUserByProvider returns the user linked to an OAuth provider identity.
func (s *SQLiteStore) GetUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID)
	return s.scanUser(row)
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt, updatedAt string

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Provider,
		&u.ProviderUserID,
		&u.Name,
		&u.Role,
		&u.Status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.CreatedAt = s.parseTime(createdAt, "users.created_at")
	u.UpdatedAt = s.parseTime(updatedAt, "users.updated_at")
	return &u, nil
}
