// ABOUTME: Project persistence for the SQLite store
// ABOUTME: CRUD plus per-project task statistics and activity timestamps

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const projectColumns = `id, owner_id, name, description, color, status, last_activity_at, created_at, updated_at`

// CreateProject inserts a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Color == "" {
		p.Color = "#1890ff"
	}
	if p.Status == "" {
		p.Status = ProjectStatusActive
	}

	query := `
		INSERT INTO projects (owner_id, name, description, color, status, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		p.OwnerID,
		p.Name,
		p.Description,
		p.Color,
		p.Status,
		formatTimePtr(p.LastActivityAt),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}

	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading project id: %w", err)
	}
	return nil
}

// GetProject returns the project with the given id.
func (s *SQLiteStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return s.scanProject(row)
}

// GetProjectByName returns the owner's project with the given name. Names are
// not unique across owners, so lookup is always scoped to one owner.
func (s *SQLiteStore) GetProjectByName(ctx context.Context, ownerID int64, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = ? AND name = ? ORDER BY id LIMIT 1`,
		ownerID, name)
	return s.scanProject(row)
}

// ListProjects returns all projects owned by ownerID, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context, ownerID int64) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := s.scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject writes name, description, color, and status.
func (s *SQLiteStore) UpdateProject(ctx context.Context, p *Project) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE projects
		SET name = ?, description = ?, color = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		p.Name, p.Description, p.Color, p.Status, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteProject removes a project. Tasks and context rules are removed by
// the foreign key cascade, task history by the task cascade.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return requireRowAffected(res)
}

// TouchProjectActivity sets last_activity_at.
func (s *SQLiteStore) TouchProjectActivity(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET last_activity_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching project activity: %w", err)
	}
	return requireRowAffected(res)
}

// GetProjectStats aggregates task counts and active rule count for a project.
func (s *SQLiteStore) GetProjectStats(ctx context.Context, id int64) (*ProjectStats, error) {
	if _, err := s.GetProject(ctx, id); err != nil {
		return nil, err
	}

	var stats ProjectStats
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(status = 'todo'), 0),
			COALESCE(SUM(status = 'in_progress'), 0),
			COALESCE(SUM(status = 'review'), 0),
			COALESCE(SUM(status = 'done'), 0)
		FROM tasks WHERE project_id = ?
	`
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&stats.TotalTasks,
		&stats.TodoTasks,
		&stats.InProgressTasks,
		&stats.ReviewTasks,
		&stats.DoneTasks,
	)
	if err != nil {
		return nil, fmt.Errorf("querying task stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM context_rules WHERE project_id = ? AND is_active = 1`, id).
		Scan(&stats.ContextRules)
	if err != nil {
		return nil, fmt.Errorf("querying rule stats: %w", err)
	}
	return &stats, nil
}

func (s *SQLiteStore) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var lastActivity sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Color, &p.Status,
		&lastActivity, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}

	p.LastActivityAt = s.parseTimePtr(lastActivity, "projects.last_activity_at")
	p.CreatedAt = s.parseTime(createdAt, "projects.created_at")
	p.UpdatedAt = s.parseTime(updatedAt, "projects.updated_at")
	return &p, nil
}

func (s *SQLiteStore) scanProjectRows(rows *sql.Rows) (*Project, error) {
	var p Project
	var lastActivity sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Color, &p.Status,
		&lastActivity, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	p.LastActivityAt = s.parseTimePtr(lastActivity, "projects.last_activity_at")
	p.CreatedAt = s.parseTime(createdAt, "projects.created_at")
	p.UpdatedAt = s.parseTime(updatedAt, "projects.updated_at")
	return &p, nil
}

// requireRowAffected converts zero-row updates and deletes into ErrNotFound.
func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
