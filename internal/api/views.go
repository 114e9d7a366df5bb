// ABOUTME: JSON response types for the REST API and their conversions from store types.
// ABOUTME: Timestamps are RFC3339 UTC strings; due dates are plain YYYY-MM-DD.

package api

import (
	"time"

	"github.com/todoforai/todod/internal/store"
)

const dateLayout = "2006-01-02"

// UserResponse is the JSON shape of a user.
type UserResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	Provider  string `json:"provider,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ProjectResponse is the JSON shape of a project.
type ProjectResponse struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Color          string              `json:"color,omitempty"`
	Status         string              `json:"status"`
	LastActivityAt string              `json:"last_activity_at,omitempty"`
	CreatedAt      string              `json:"created_at"`
	UpdatedAt      string              `json:"updated_at"`
	Stats          *store.ProjectStats `json:"stats,omitempty"`
}

// TaskResponse is the JSON shape of a task.
type TaskResponse struct {
	ID                int64  `json:"id"`
	ProjectID         int64  `json:"project_id"`
	Title             string `json:"title"`
	Content           string `json:"content,omitempty"`
	ContentHTML       string `json:"content_html,omitempty"`
	Status            string `json:"status"`
	Priority          string `json:"priority"`
	Assignee          string `json:"assignee,omitempty"`
	DueDate           string `json:"due_date,omitempty"`
	CompletedAt       string `json:"completed_at,omitempty"`
	CreatorType       string `json:"creator_type"`
	CreatorIdentifier string `json:"creator_identifier,omitempty"`
	FeedbackContent   string `json:"feedback_content,omitempty"`
	FeedbackAt        string `json:"feedback_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// RuleResponse is the JSON shape of a context rule.
type RuleResponse struct {
	ID           int64  `json:"id"`
	ProjectID    *int64 `json:"project_id"` // null for global rules
	Name         string `json:"name"`
	Content      string `json:"content"`
	Priority     int    `json:"priority"`
	IsActive     bool   `json:"is_active"`
	ApplyToTasks bool   `json:"apply_to_tasks"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// TokenResponse is the JSON shape of an API token. The raw secret appears
// only in CreateTokenResponse, exactly once.
type TokenResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	IsActive   bool   `json:"is_active"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	UsageCount int64  `json:"usage_count"`
	CreatedAt  string `json:"created_at"`
}

// CreateTokenResponse carries the raw token alongside its record.
type CreateTokenResponse struct {
	Token TokenResponse `json:"token"`
	Raw   string        `json:"raw_token"`
}

// HistoryResponse is the JSON shape of one task history entry.
type HistoryResponse struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	Action    string `json:"action"`
	FieldName string `json:"field_name,omitempty"`
	OldValue  string `json:"old_value,omitempty"`
	NewValue  string `json:"new_value,omitempty"`
	ChangedBy string `json:"changed_by,omitempty"`
	ChangedAt string `json:"changed_at"`
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtTime(*t)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Provider:  u.Provider,
		CreatedAt: fmtTime(u.CreatedAt),
	}
}

func projectResponse(p *store.Project, stats *store.ProjectStats) ProjectResponse {
	return ProjectResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Color:          p.Color,
		Status:         p.Status,
		LastActivityAt: fmtTimePtr(p.LastActivityAt),
		CreatedAt:      fmtTime(p.CreatedAt),
		UpdatedAt:      fmtTime(p.UpdatedAt),
		Stats:          stats,
	}
}

func taskResponse(t *store.Task) TaskResponse {
	resp := TaskResponse{
		ID:                t.ID,
		ProjectID:         t.ProjectID,
		Title:             t.Title,
		Content:           t.Content,
		Status:            t.Status,
		Priority:          t.Priority,
		Assignee:          strOrEmpty(t.Assignee),
		CompletedAt:       fmtTimePtr(t.CompletedAt),
		CreatorType:       t.CreatorType,
		CreatorIdentifier: strOrEmpty(t.CreatorIdentifier),
		FeedbackContent:   strOrEmpty(t.FeedbackContent),
		FeedbackAt:        fmtTimePtr(t.FeedbackAt),
		CreatedAt:         fmtTime(t.CreatedAt),
		UpdatedAt:         fmtTime(t.UpdatedAt),
	}
	if t.DueDate != nil {
		resp.DueDate = t.DueDate.Format(dateLayout)
	}
	return resp
}

func ruleResponse(r *store.ContextRule) RuleResponse {
	return RuleResponse{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		Name:         r.Name,
		Content:      r.Content,
		Priority:     r.Priority,
		IsActive:     r.IsActive,
		ApplyToTasks: r.ApplyToTasks,
		CreatedAt:    fmtTime(r.CreatedAt),
		UpdatedAt:    fmtTime(r.UpdatedAt),
	}
}

func tokenResponse(t *store.APIToken) TokenResponse {
	return TokenResponse{
		ID:         t.ID,
		Name:       t.Name,
		Prefix:     t.Prefix,
		IsActive:   t.IsActive,
		ExpiresAt:  fmtTimePtr(t.ExpiresAt),
		LastUsedAt: fmtTimePtr(t.LastUsedAt),
		UsageCount: t.UsageCount,
		CreatedAt:  fmtTime(t.CreatedAt),
	}
}

func historyResponse(h *store.TaskHistory) HistoryResponse {
	return HistoryResponse{
		ID:        h.ID,
		TaskID:    h.TaskID,
		Action:    h.Action,
		FieldName: strOrEmpty(h.FieldName),
		OldValue:  strOrEmpty(h.OldValue),
		NewValue:  strOrEmpty(h.NewValue),
		ChangedBy: strOrEmpty(h.ChangedBy),
		ChangedAt: fmtTime(h.ChangedAt),
	}
}
