// ABOUTME: Tool handlers for the MCP gateway: project queries, task CRUD, feedback.
// ABOUTME: Every handler authorizes ownership before touching data and sanitizes free text on writes.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/sanitize"
	"github.com/todoforai/todod/internal/store"
)

// DomainError is a tool-level failure the caller can act on (a missing task,
// an unknown project name). It travels inside the 200 response envelope as
// {"ok":false,"error":...} rather than as an HTTP error status.
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func domainErrf(format string, args ...any) *DomainError {
	return &DomainError{Message: fmt.Sprintf(format, args...)}
}

const dateLayout = "2006-01-02"

// defaultTaskStatuses is the status filter applied when the caller does not
// pass one: the statuses that still need attention.
var defaultTaskStatuses = []string{
	store.TaskStatusTodo,
	store.TaskStatusInProgress,
	store.TaskStatusReview,
}

// Toolset implements the tool handlers against the store.
type Toolset struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewToolset creates the handler set backed by the given store.
func NewToolset(st store.Store, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{
		store:  st,
		logger: logger.With("component", "mcp-tools"),
		now:    time.Now,
	}
}

// Tools returns the complete tool table for registry construction.
func (t *Toolset) Tools() []*Tool {
	return []*Tool{
		{
			Name:        "list_projects",
			Description: "List your projects with task counts",
			SchemaJSON:  `{"type":"object","properties":{},"additionalProperties":false}`,
			handler:     t.listProjects,
		},
		{
			Name:        "get_project_info",
			Description: "Get one project with task statistics, by id or by name",
			SchemaJSON:  `{"type":"object","properties":{"project_id":{"type":"integer"},"project_name":{"type":"string"}},"additionalProperties":false}`,
			handler:     t.getProjectInfo,
		},
		{
			Name:        "get_project_tasks_by_name",
			Description: "List a project's tasks by project name, optionally filtered by status",
			SchemaJSON:  `{"type":"object","properties":{"project_name":{"type":"string","minLength":1},"status_filter":{"type":"array","items":{"type":"string","enum":["todo","in_progress","review","done","cancelled"]}}},"required":["project_name"],"additionalProperties":false}`,
			handler:     t.getProjectTasksByName,
		},
		{
			Name:        "get_task_by_id",
			Description: "Get one task with applicable context rules appended to its content",
			SchemaJSON:  `{"type":"object","properties":{"task_id":{"type":"integer"}},"required":["task_id"],"additionalProperties":false}`,
			handler:     t.getTaskByID,
		},
		{
			Name:        "create_task",
			Description: "Create a task in one of your projects",
			SchemaJSON:  `{"type":"object","properties":{"project_id":{"type":"integer"},"title":{"type":"string","minLength":1},"content":{"type":"string"},"status":{"type":"string","enum":["todo","in_progress","review","done","cancelled"]},"priority":{"type":"string","enum":["low","medium","high","urgent"]},"assignee":{"type":"string"},"due_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"},"ai_identifier":{"type":"string"}},"required":["project_id","title"],"additionalProperties":false}`,
			handler:     t.createTask,
		},
		{
			Name:        "update_task",
			Description: "Update fields of one of your tasks",
			SchemaJSON:  `{"type":"object","properties":{"task_id":{"type":"integer"},"title":{"type":"string","minLength":1},"content":{"type":"string"},"status":{"type":"string","enum":["todo","in_progress","review","done","cancelled"]},"priority":{"type":"string","enum":["low","medium","high","urgent"]},"assignee":{"type":"string"},"due_date":{"type":"string","pattern":"^\\d{4}-\\d{2}-\\d{2}$"}},"required":["task_id"],"additionalProperties":false}`,
			handler:     t.updateTask,
		},
		{
			Name:        "submit_task_feedback",
			Description: "Attach feedback to a task and move it to a new status",
			SchemaJSON:  `{"type":"object","properties":{"task_id":{"type":"integer"},"project_name":{"type":"string","minLength":1},"feedback_content":{"type":"string","minLength":1},"status":{"type":"string","enum":["in_progress","review","done","cancelled"]},"ai_identifier":{"type":"string"}},"required":["task_id","project_name","feedback_content","status"],"additionalProperties":false}`,
			handler:     t.submitTaskFeedback,
		},
	}
}

// NewRegistry wires the toolset into a validated registry.
func (t *Toolset) NewRegistry() (*Registry, error) {
	return NewRegistry(t.Tools())
}

func (t *Toolset) listProjects(ctx context.Context, user *store.User, _ Args) (any, error) {
	projects, err := t.store.ListProjects(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	views := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		stats, err := t.store.GetProjectStats(ctx, p.ID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		views = append(views, projectView(p, stats))
	}

	return map[string]any{
		"projects": views,
		"count":    len(views),
	}, nil
}

func (t *Toolset) getProjectInfo(ctx context.Context, user *store.User, args Args) (any, error) {
	var (
		project *store.Project
		err     error
	)
	if id, ok := args.Int("project_id"); ok {
		project, err = t.authorizeProject(ctx, user, id)
	} else if name := args.String("project_name"); name != "" {
		project, err = t.findOwnProjectByName(ctx, user, name)
	} else {
		return nil, apperr.InvalidArgument("project_id or project_name is required")
	}
	if err != nil {
		return nil, err
	}

	stats, err := t.store.GetProjectStats(ctx, project.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return map[string]any{"project": projectView(project, stats)}, nil
}

func (t *Toolset) getProjectTasksByName(ctx context.Context, user *store.User, args Args) (any, error) {
	project, err := t.findOwnProjectByName(ctx, user, args.String("project_name"))
	if err != nil {
		return nil, err
	}

	statuses := args.Strings("status_filter")
	if len(statuses) == 0 {
		statuses = defaultTaskStatuses
	}

	tasks, err := t.store.ListTasks(ctx, store.TaskFilter{ProjectID: project.ID, Statuses: statuses})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	views := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, taskView(task))
	}
	return map[string]any{
		"project": map[string]any{"id": project.ID, "name": project.Name},
		"tasks":   views,
		"count":   len(views),
	}, nil
}

func (t *Toolset) getTaskByID(ctx context.Context, user *store.User, args Args) (any, error) {
	id, _ := args.Int("task_id")
	task, _, err := t.authorizeTask(ctx, user, id)
	if err != nil {
		return nil, err
	}

	rules, err := t.store.ListApplicableRules(ctx, task.ProjectID, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	view := taskView(task)
	view["content"] = contentWithRules(task.Content, rules)
	return map[string]any{"task": view}, nil
}

func (t *Toolset) createTask(ctx context.Context, user *store.User, args Args) (any, error) {
	projectID, _ := args.Int("project_id")
	project, err := t.authorizeProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}

	status := args.String("status")
	if status == "" {
		status = store.TaskStatusTodo
	}
	priority := args.String("priority")
	if priority == "" {
		priority = store.TaskPriorityMedium
	}

	task := &store.Task{
		ProjectID:   project.ID,
		Title:       sanitize.Text(args.String("title")),
		Content:     sanitize.Text(args.String("content")),
		Status:      status,
		Priority:    priority,
		CreatorID:   &user.ID,
		CreatorType: store.CreatorTypeAI,
	}
	if a := sanitize.Text(args.String("assignee")); a != "" {
		task.Assignee = &a
	}
	if ai := sanitize.Text(args.String("ai_identifier")); ai != "" {
		task.CreatorIdentifier = &ai
	}
	if due := args.String("due_date"); due != "" {
		d, err := time.Parse(dateLayout, due)
		if err != nil {
			return nil, apperr.InvalidArgument("due_date must be YYYY-MM-DD")
		}
		task.DueDate = &d
	}
	if task.Status == store.TaskStatusDone {
		now := t.now().UTC()
		task.CompletedAt = &now
	}

	if err := t.store.CreateTask(ctx, task); err != nil {
		return nil, apperr.Internal(err)
	}
	t.recordHistory(ctx, &store.TaskHistory{
		TaskID:    task.ID,
		Action:    store.HistoryActionCreated,
		NewValue:  &task.Title,
		ChangedBy: changedBy(user, task.CreatorIdentifier),
	})
	t.touchProject(ctx, project.ID)

	t.logger.Info("task created",
		"task_id", task.ID,
		"project_id", project.ID,
		"user_id", user.ID,
	)
	return map[string]any{"task": taskView(task)}, nil
}

func (t *Toolset) updateTask(ctx context.Context, user *store.User, args Args) (any, error) {
	id, _ := args.Int("task_id")
	task, project, err := t.authorizeTask(ctx, user, id)
	if err != nil {
		return nil, err
	}

	by := changedBy(user, task.CreatorIdentifier)
	var history []*store.TaskHistory
	changed := false

	if args.Has("title") {
		title := sanitize.Text(args.String("title"))
		if title != task.Title {
			history = append(history, fieldChange(task.ID, "title", task.Title, title, by))
			task.Title = title
			changed = true
		}
	}
	if args.Has("content") {
		content := sanitize.Text(args.String("content"))
		if content != task.Content {
			history = append(history, fieldChange(task.ID, "content", task.Content, content, by))
			task.Content = content
			changed = true
		}
	}
	if args.Has("priority") {
		priority := args.String("priority")
		if priority != task.Priority {
			history = append(history, fieldChange(task.ID, "priority", task.Priority, priority, by))
			task.Priority = priority
			changed = true
		}
	}
	if args.Has("assignee") {
		assignee := sanitize.Text(args.String("assignee"))
		old := ""
		if task.Assignee != nil {
			old = *task.Assignee
		}
		if assignee != old {
			history = append(history, fieldChange(task.ID, "assignee", old, assignee, by))
			if assignee == "" {
				task.Assignee = nil
			} else {
				task.Assignee = &assignee
			}
			changed = true
		}
	}
	if args.Has("due_date") {
		due, err := time.Parse(dateLayout, args.String("due_date"))
		if err != nil {
			return nil, apperr.InvalidArgument("due_date must be YYYY-MM-DD")
		}
		old := ""
		if task.DueDate != nil {
			old = task.DueDate.Format(dateLayout)
		}
		if due.Format(dateLayout) != old {
			history = append(history, fieldChange(task.ID, "due_date", old, due.Format(dateLayout), by))
			task.DueDate = &due
			changed = true
		}
	}
	if args.Has("status") {
		status := args.String("status")
		if status != task.Status {
			h := fieldChange(task.ID, "status", task.Status, status, by)
			h.Action = store.HistoryActionStatusChanged
			if status == store.TaskStatusDone {
				h.Action = store.HistoryActionCompleted
				now := t.now().UTC()
				task.CompletedAt = &now
			}
			history = append(history, h)
			task.Status = status
			changed = true
		}
	}

	if !changed {
		return map[string]any{"task": taskView(task)}, nil
	}

	if err := t.store.UpdateTask(ctx, task); err != nil {
		return nil, apperr.Internal(err)
	}
	for _, h := range history {
		t.recordHistory(ctx, h)
	}
	t.touchProject(ctx, project.ID)

	return map[string]any{"task": taskView(task)}, nil
}

func (t *Toolset) submitTaskFeedback(ctx context.Context, user *store.User, args Args) (any, error) {
	id, _ := args.Int("task_id")
	task, project, err := t.authorizeTask(ctx, user, id)
	if err != nil {
		return nil, err
	}

	projectName := args.String("project_name")
	if project.Name != projectName {
		return nil, domainErrf("task %d does not belong to project %q", task.ID, projectName)
	}

	status := args.String("status")
	feedback := sanitize.Text(args.String("feedback_content"))
	now := t.now().UTC()

	by := changedBy(user, task.CreatorIdentifier)
	if ai := sanitize.Text(args.String("ai_identifier")); ai != "" {
		by = &ai
	}

	task.FeedbackContent = &feedback
	task.FeedbackAt = &now

	var h *store.TaskHistory
	if status != task.Status {
		h = fieldChange(task.ID, "status", task.Status, status, by)
		h.Action = store.HistoryActionStatusChanged
		if status == store.TaskStatusDone {
			h.Action = store.HistoryActionCompleted
			task.CompletedAt = &now
		}
		task.Status = status
	}

	if err := t.store.UpdateTask(ctx, task); err != nil {
		return nil, apperr.Internal(err)
	}
	if h != nil {
		t.recordHistory(ctx, h)
	}
	t.touchProject(ctx, project.ID)

	t.logger.Info("task feedback recorded",
		"task_id", task.ID,
		"status", task.Status,
		"user_id", user.ID,
	)
	return map[string]any{"task": taskView(task)}, nil
}

// authorizeProject loads a project and verifies the caller owns it. A
// missing project is a domain error; someone else's project is Forbidden.
func (t *Toolset) authorizeProject(ctx context.Context, user *store.User, id int64) (*store.Project, error) {
	project, err := t.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainErrf("project %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if project.OwnerID != user.ID {
		return nil, apperr.Forbidden("access denied")
	}
	return project, nil
}

// authorizeTask loads a task and verifies the caller owns its project.
func (t *Toolset) authorizeTask(ctx context.Context, user *store.User, id int64) (*store.Task, *store.Project, error) {
	task, err := t.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, domainErrf("task %d not found", id)
	}
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	project, err := t.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if project.OwnerID != user.ID {
		return nil, nil, apperr.Forbidden("access denied")
	}
	return task, project, nil
}

// findOwnProjectByName resolves a project name among the caller's own
// projects. Unknown names report what the caller actually has, so an AI
// client can self-correct instead of retrying blind.
func (t *Toolset) findOwnProjectByName(ctx context.Context, user *store.User, name string) (*store.Project, error) {
	p, err := t.store.GetProjectByName(ctx, user.ID, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	projects, err := t.store.ListProjects(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	if len(names) == 0 {
		return nil, domainErrf("project %q not found; you have no projects", name)
	}
	return nil, domainErrf("project %q not found; your projects: %s", name, strings.Join(names, ", "))
}

// recordHistory appends a history row. History is advisory; a failed append
// is logged and does not fail the call.
func (t *Toolset) recordHistory(ctx context.Context, h *store.TaskHistory) {
	if h.ChangedAt.IsZero() {
		h.ChangedAt = t.now().UTC()
	}
	if err := t.store.AppendTaskHistory(ctx, h); err != nil {
		t.logger.Warn("failed to append task history", "task_id", h.TaskID, "action", h.Action, "error", err)
	}
}

func (t *Toolset) touchProject(ctx context.Context, id int64) {
	if err := t.store.TouchProjectActivity(ctx, id, t.now().UTC()); err != nil {
		t.logger.Warn("failed to touch project activity", "project_id", id, "error", err)
	}
}

func fieldChange(taskID int64, field, oldV, newV string, by *string) *store.TaskHistory {
	return &store.TaskHistory{
		TaskID:    taskID,
		Action:    store.HistoryActionUpdated,
		FieldName: &field,
		OldValue:  &oldV,
		NewValue:  &newV,
		ChangedBy: by,
	}
}

func changedBy(user *store.User, aiIdentifier *string) *string {
	if aiIdentifier != nil && *aiIdentifier != "" {
		return aiIdentifier
	}
	email := user.Email
	return &email
}

// contentWithRules appends the applicable context rules to task content,
// highest priority first, under a fixed heading.
func contentWithRules(content string, rules []*store.ContextRule) string {
	if len(rules) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n\n## Context Rules\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "\n### %s\n%s\n", r.Name, r.Content)
	}
	return b.String()
}

func projectView(p *store.Project, stats *store.ProjectStats) map[string]any {
	v := map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"color":       p.Color,
		"status":      p.Status,
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.LastActivityAt != nil {
		v["last_activity_at"] = p.LastActivityAt.UTC().Format(time.RFC3339)
	}
	if stats != nil {
		v["stats"] = stats
	}
	return v
}

func taskView(t *store.Task) map[string]any {
	v := map[string]any{
		"id":         t.ID,
		"project_id": t.ProjectID,
		"title":      t.Title,
		"content":    t.Content,
		"status":     t.Status,
		"priority":   t.Priority,
		"created_at": t.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.Assignee != nil {
		v["assignee"] = *t.Assignee
	}
	if t.DueDate != nil {
		v["due_date"] = t.DueDate.Format(dateLayout)
	}
	if t.CompletedAt != nil {
		v["completed_at"] = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	if t.CreatorIdentifier != nil {
		v["creator_identifier"] = *t.CreatorIdentifier
	}
	v["creator_type"] = t.CreatorType
	if t.FeedbackContent != nil {
		v["feedback_content"] = *t.FeedbackContent
	}
	if t.FeedbackAt != nil {
		v["feedback_at"] = t.FeedbackAt.UTC().Format(time.RFC3339)
	}
	return v
}
