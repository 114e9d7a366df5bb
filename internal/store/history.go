// ABOUTME: Append-only task history persistence
// ABOUTME: Rows are never updated or deleted except by the task deletion cascade

package store

import (
	"context"
	"fmt"
	"time"

	"database/sql"
)

// AppendTaskHistory records one field change on a task.
func (s *SQLiteStore) AppendTaskHistory(ctx context.Context, h *TaskHistory) error {
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO task_history (task_id, action, field_name, old_value, new_value, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		h.TaskID,
		h.Action,
		nullStr(h.FieldName),
		nullStr(h.OldValue),
		nullStr(h.NewValue),
		nullStr(h.ChangedBy),
		formatTime(h.ChangedAt),
	)
	if err != nil {
		return fmt.Errorf("appending task history: %w", err)
	}

	h.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading history id: %w", err)
	}
	return nil
}

// ListTaskHistory returns the change records for a task in timestamp order.
func (s *SQLiteStore) ListTaskHistory(ctx context.Context, taskID int64) ([]*TaskHistory, error) {
	query := `
		SELECT id, task_id, action, field_name, old_value, new_value, changed_by, changed_at
		FROM task_history
		WHERE task_id = ?
		ORDER BY changed_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying task history: %w", err)
	}
	defer rows.Close()

	var entries []*TaskHistory
	for rows.Next() {
		var h TaskHistory
		var fieldName, oldValue, newValue, changedBy sql.NullString
		var changedAt string

		if err := rows.Scan(&h.ID, &h.TaskID, &h.Action, &fieldName, &oldValue, &newValue, &changedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		h.FieldName = strPtr(fieldName)
		h.OldValue = strPtr(oldValue)
		h.NewValue = strPtr(newValue)
		h.ChangedBy = strPtr(changedBy)
		h.ChangedAt = s.parseTime(changedAt, "task_history.changed_at")
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}
