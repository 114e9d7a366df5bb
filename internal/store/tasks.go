// ABOUTME: Task persistence for the SQLite store
// ABOUTME: CRUD with status filtering; MCP listings order by creation time ascending

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, project_id, title, content, status, priority, assignee, due_date,
	completed_at, creator_id, creator_type, creator_identifier, feedback_content, feedback_at,
	created_at, updated_at`

// CreateTask inserts a new task. The project must exist (enforced by the
// foreign key).
func (s *SQLiteStore) CreateTask(ctx context.Context, t *Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Status == "" {
		t.Status = TaskStatusTodo
	}
	if t.Priority == "" {
		t.Priority = TaskPriorityMedium
	}
	if t.CreatorType == "" {
		t.CreatorType = CreatorTypeHuman
	}

	query := `
		INSERT INTO tasks (project_id, title, content, status, priority, assignee, due_date,
			completed_at, creator_id, creator_type, creator_identifier, feedback_content, feedback_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		t.ProjectID,
		t.Title,
		t.Content,
		t.Status,
		t.Priority,
		nullStr(t.Assignee),
		formatTimePtr(t.DueDate),
		formatTimePtr(t.CompletedAt),
		nullInt(t.CreatorID),
		t.CreatorType,
		nullStr(t.CreatorIdentifier),
		nullStr(t.FeedbackContent),
		formatTimePtr(t.FeedbackAt),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}
	return nil
}

// GetTask returns the task with the given id.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := s.scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTasks returns tasks matching the filter, ordered by creation time
// ascending so AI clients process the oldest work first.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any

	if filter.ProjectID != 0 {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := strings.Repeat("?, ", len(filter.Statuses))
		conds = append(conds, "status IN ("+placeholders[:len(placeholders)-2]+")")
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := s.scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask writes all mutable task fields.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE tasks
		SET title = ?, content = ?, status = ?, priority = ?, assignee = ?, due_date = ?,
			completed_at = ?, feedback_content = ?, feedback_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		t.Title,
		t.Content,
		t.Status,
		t.Priority,
		nullStr(t.Assignee),
		formatTimePtr(t.DueDate),
		formatTimePtr(t.CompletedAt),
		nullStr(t.FeedbackContent),
		formatTimePtr(t.FeedbackAt),
		formatTime(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteTask removes a task; its history rows follow by cascade.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return requireRowAffected(res)
}

// scanTask maps a row onto a Task. The scan argument abstracts over
// sql.Row.Scan and sql.Rows.Scan.
func (s *SQLiteStore) scanTask(scan func(dest ...any) error) (*Task, error) {
	var t Task
	var assignee, dueDate, completedAt, creatorIdentifier, feedbackContent, feedbackAt sql.NullString
	var creatorID sql.NullInt64
	var createdAt, updatedAt string

	err := scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Content,
		&t.Status,
		&t.Priority,
		&assignee,
		&dueDate,
		&completedAt,
		&creatorID,
		&t.CreatorType,
		&creatorIdentifier,
		&feedbackContent,
		&feedbackAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Assignee = strPtr(assignee)
	t.DueDate = s.parseTimePtr(dueDate, "tasks.due_date")
	t.CompletedAt = s.parseTimePtr(completedAt, "tasks.completed_at")
	t.CreatorID = intPtr(creatorID)
	t.CreatorIdentifier = strPtr(creatorIdentifier)
	t.FeedbackContent = strPtr(feedbackContent)
	t.FeedbackAt = s.parseTimePtr(feedbackAt, "tasks.feedback_at")
	t.CreatedAt = s.parseTime(createdAt, "tasks.created_at")
	t.UpdatedAt = s.parseTime(updatedAt, "tasks.updated_at")
	return &t, nil
}
