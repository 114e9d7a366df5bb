// ABOUTME: Context rule persistence for the SQLite store
// ABOUTME: Applicable-rule lookup merges project rules with the owner's global rules by priority

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const ruleColumns = `id, project_id, user_id, name, content, priority, is_active, apply_to_tasks, created_at, updated_at`

// CreateRule inserts a context rule. A nil ProjectID creates a global rule.
func (s *SQLiteStore) CreateRule(ctx context.Context, r *ContextRule) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}

	query := `
		INSERT INTO context_rules (project_id, user_id, name, content, priority, is_active, apply_to_tasks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		nullInt(r.ProjectID),
		r.UserID,
		r.Name,
		r.Content,
		r.Priority,
		r.IsActive,
		r.ApplyToTasks,
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting context rule: %w", err)
	}

	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading rule id: %w", err)
	}
	return nil
}

// GetRule returns the rule with the given id.
func (s *SQLiteStore) GetRule(ctx context.Context, id int64) (*ContextRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM context_rules WHERE id = ?`, id)
	r, err := s.scanRule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRules returns all rules owned by userID, highest priority first.
func (s *SQLiteStore) ListRules(ctx context.Context, userID int64) ([]*ContextRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM context_rules WHERE user_id = ? ORDER BY priority DESC, id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying context rules: %w", err)
	}
	return s.collectRules(rows)
}

// ListApplicableRules returns active task-scoped rules for a project: the
// project's own rules plus the user's global rules, highest priority first.
func (s *SQLiteStore) ListApplicableRules(ctx context.Context, projectID, userID int64) ([]*ContextRule, error) {
	query := `
		SELECT ` + ruleColumns + ` FROM context_rules
		WHERE is_active = 1 AND apply_to_tasks = 1
			AND (project_id = ? OR (project_id IS NULL AND user_id = ?))
		ORDER BY priority DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying applicable rules: %w", err)
	}
	return s.collectRules(rows)
}

// UpdateRule writes project scope, name, content, priority, and flags.
// A nil ProjectID re-scopes the rule to global.
func (s *SQLiteStore) UpdateRule(ctx context.Context, r *ContextRule) error {
	r.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE context_rules
		SET project_id = ?, name = ?, content = ?, priority = ?, is_active = ?, apply_to_tasks = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullInt(r.ProjectID), r.Name, r.Content, r.Priority, r.IsActive, r.ApplyToTasks, formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("updating context rule: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteRule removes a context rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM context_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting context rule: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) collectRules(rows *sql.Rows) ([]*ContextRule, error) {
	defer rows.Close()

	var rules []*ContextRule
	for rows.Next() {
		r, err := s.scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLiteStore) scanRule(scan func(dest ...any) error) (*ContextRule, error) {
	var r ContextRule
	var projectID sql.NullInt64
	var createdAt, updatedAt string

	err := scan(
		&r.ID,
		&projectID,
		&r.UserID,
		&r.Name,
		&r.Content,
		&r.Priority,
		&r.IsActive,
		&r.ApplyToTasks,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ProjectID = intPtr(projectID)
	r.CreatedAt = s.parseTime(createdAt, "context_rules.created_at")
	r.UpdatedAt = s.parseTime(updatedAt, "context_rules.updated_at")
	return &r, nil
}
