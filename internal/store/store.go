// ABOUTME: Store interface and data types for todod persistence
// ABOUTME: Defines User, Project, Task, ContextRule, APIToken, TaskHistory and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint is violated
var ErrDuplicate = errors.New("already exists")

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User statuses
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// User is an account identity. Either PasswordHash (local login) or
// Provider/ProviderUserID (OAuth login) identifies the credential.
type User struct {
	ID             int64
	Email          string
	PasswordHash   string // bcrypt hash, empty for OAuth-only accounts
	Provider       string // "github", "google", empty for local accounts
	ProviderUserID string
	Name           string
	Role           string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool { return u.Status == UserStatusActive }

// Project statuses
const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

// Project is a named container of tasks and context rules, owned by one user.
type Project struct {
	ID             int64
	OwnerID        int64
	Name           string
	Description    string
	Color          string // hex, e.g. "#1890ff"
	Status         string
	LastActivityAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProjectStats aggregates task counts for a project.
type ProjectStats struct {
	TotalTasks      int `json:"total_tasks"`
	TodoTasks       int `json:"todo_tasks"`
	InProgressTasks int `json:"in_progress_tasks"`
	ReviewTasks     int `json:"review_tasks"`
	DoneTasks       int `json:"done_tasks"`
	ContextRules    int `json:"context_rules"`
}

// Task statuses
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

// Task priorities
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

// Creator types
const (
	CreatorTypeHuman = "human"
	CreatorTypeAI    = "ai"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

// ValidTaskPriority reports whether p is a known task priority.
func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// Task belongs to exactly one project. Tasks are created by humans through
// the REST API or by AI identities through the MCP gateway.
type Task struct {
	ID                int64
	ProjectID         int64
	Title             string
	Content           string // markdown
	Status            string
	Priority          string
	Assignee          *string
	DueDate           *time.Time
	CompletedAt       *time.Time
	CreatorID         *int64
	CreatorType       string
	CreatorIdentifier *string
	FeedbackContent   *string
	FeedbackAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TaskFilter narrows ListTasks results. Zero values mean "no filter".
type TaskFilter struct {
	ProjectID int64
	Statuses  []string
}

// ContextRule is a textual instruction applied when assembling AI context.
// A nil ProjectID makes the rule global for its owner.
type ContextRule struct {
	ID           int64
	ProjectID    *int64 // nil = global rule
	UserID       int64
	Name         string
	Content      string
	Priority     int // higher wins
	IsActive     bool
	ApplyToTasks bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsGlobal reports whether the rule applies to all of its owner's projects.
func (r *ContextRule) IsGlobal() bool { return r.ProjectID == nil }

// APIToken is a long-lived bearer credential for automated clients.
// Only the SHA-256 hash of the raw secret is stored.
type APIToken struct {
	ID         int64
	UserID     int64
	Name       string
	TokenHash  string // sha256 hex of the raw token
	Prefix     string // first characters of the raw token, for display
	IsActive   bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	UsageCount int64
	CreatedAt  time.Time
}

// Task history actions
const (
	HistoryActionCreated       = "created"
	HistoryActionUpdated       = "updated"
	HistoryActionStatusChanged = "status_changed"
	HistoryActionCompleted     = "completed"
	HistoryActionDeleted       = "deleted"
)

// TaskHistory is an immutable record of a field change on a task. The store
// exposes append and list only; rows are removed solely by the task's
// deletion cascade.
type TaskHistory struct {
	ID        int64
	TaskID    int64
	Action    string
	FieldName *string
	OldValue  *string
	NewValue  *string
	ChangedBy *string
	ChangedAt time.Time
}

// UserStore defines user persistence operations.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error)
}

// ProjectStore defines project persistence operations.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id int64) (*Project, error)
	GetProjectByName(ctx context.Context, ownerID int64, name string) (*Project, error)
	ListProjects(ctx context.Context, ownerID int64) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id int64) error
	TouchProjectActivity(ctx context.Context, id int64, at time.Time) error
	GetProjectStats(ctx context.Context, id int64) (*ProjectStats, error)
}

// TaskStore defines task persistence operations.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id int64) error
}

// RuleStore defines context rule persistence operations.
type RuleStore interface {
	CreateRule(ctx context.Context, r *ContextRule) error
	GetRule(ctx context.Context, id int64) (*ContextRule, error)
	ListRules(ctx context.Context, userID int64) ([]*ContextRule, error)
	ListApplicableRules(ctx context.Context, projectID, userID int64) ([]*ContextRule, error)
	UpdateRule(ctx context.Context, r *ContextRule) error
	DeleteRule(ctx context.Context, id int64) error
}

// TokenStore defines API token persistence operations.
type TokenStore interface {
	CreateAPIToken(ctx context.Context, t *APIToken) error
	GetAPIToken(ctx context.Context, id int64) (*APIToken, error)
	GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error)
	ListAPITokens(ctx context.Context, userID int64) ([]*APIToken, error)
	DeleteAPIToken(ctx context.Context, id int64) error
	RecordAPITokenUse(ctx context.Context, id int64, at time.Time) error
}

// HistoryStore defines task history operations. Append-only.
type HistoryStore interface {
	AppendTaskHistory(ctx context.Context, h *TaskHistory) error
	ListTaskHistory(ctx context.Context, taskID int64) ([]*TaskHistory, error)
}

// Store is the complete persistence interface.
type Store interface {
	UserStore
	ProjectStore
	TaskStore
	RuleStore
	TokenStore
	HistoryStore
	Close() error
}
