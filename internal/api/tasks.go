// ABOUTME: Task CRUD handlers, task history listing, and markdown rendering.
// ABOUTME: Every change is recorded in the task's append-only history.

package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/sanitize"
	"github.com/todoforai/todod/internal/store"
)

// TaskRequest is the body for creating or updating a task. Pointer fields
// distinguish "not sent" from "set to empty".
type TaskRequest struct {
	ProjectID *int64  `json:"project_id"`
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Status    *string `json:"status"`
	Priority  *string `json:"priority"`
	Assignee  *string `json:"assignee"`
	DueDate   *string `json:"due_date"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	projectID, err := queryInt64(r, "project_id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if projectID == 0 {
		s.writeErr(w, r, apperr.InvalidArgument("project_id is required"))
		return
	}
	if _, err := s.authorizeProject(r.Context(), authCtx, projectID); err != nil {
		s.writeErr(w, r, err)
		return
	}

	filter := store.TaskFilter{ProjectID: projectID}
	if statuses := r.URL.Query().Get("status"); statuses != "" {
		for _, status := range strings.Split(statuses, ",") {
			if !store.ValidTaskStatus(status) {
				s.writeErr(w, r, apperr.InvalidArgument("invalid status %q", status))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	tasks, err := s.store.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, taskResponse(t))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": resp})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req TaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.ProjectID == nil {
		s.writeErr(w, r, apperr.InvalidArgument("project_id is required"))
		return
	}
	if req.Title == nil || sanitize.Text(*req.Title) == "" {
		s.writeErr(w, r, apperr.InvalidArgument("title is required"))
		return
	}
	if _, err := s.authorizeProject(r.Context(), authCtx, *req.ProjectID); err != nil {
		s.writeErr(w, r, err)
		return
	}

	task := &store.Task{
		ProjectID:   *req.ProjectID,
		Title:       sanitize.Text(*req.Title),
		Status:      store.TaskStatusTodo,
		Priority:    store.TaskPriorityMedium,
		CreatorID:   &authCtx.UserID,
		CreatorType: store.CreatorTypeHuman,
	}
	if req.Content != nil {
		task.Content = sanitize.Text(*req.Content)
	}
	if req.Status != nil {
		if !store.ValidTaskStatus(*req.Status) {
			s.writeErr(w, r, apperr.InvalidArgument("invalid status %q", *req.Status))
			return
		}
		task.Status = *req.Status
	}
	if req.Priority != nil {
		if !store.ValidTaskPriority(*req.Priority) {
			s.writeErr(w, r, apperr.InvalidArgument("invalid priority %q", *req.Priority))
			return
		}
		task.Priority = *req.Priority
	}
	if req.Assignee != nil {
		if a := sanitize.Text(*req.Assignee); a != "" {
			task.Assignee = &a
		}
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := time.Parse(dateLayout, *req.DueDate)
		if err != nil {
			s.writeErr(w, r, apperr.InvalidArgument("due_date must be YYYY-MM-DD"))
			return
		}
		task.DueDate = &due
	}
	if task.Status == store.TaskStatusDone {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}

	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.appendHistory(r, &store.TaskHistory{
		TaskID:    task.ID,
		Action:    store.HistoryActionCreated,
		NewValue:  &task.Title,
		ChangedBy: &authCtx.Email,
	})
	s.touchProject(r, task.ProjectID)

	s.logger.Info("task created", "task_id", task.ID, "project_id", task.ProjectID, "user_id", authCtx.UserID)
	s.writeJSON(w, http.StatusCreated, taskResponse(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, _, err := s.ownTask(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := taskResponse(task)
	if r.URL.Query().Get("render") == "html" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(task.Content), &buf); err != nil {
			s.writeErr(w, r, apperr.Internal(err))
			return
		}
		resp.ContentHTML = buf.String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	task, _, err := s.ownTask(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var req TaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	var history []*store.TaskHistory
	record := func(field, oldV, newV string) {
		history = append(history, &store.TaskHistory{
			TaskID:    task.ID,
			Action:    store.HistoryActionUpdated,
			FieldName: &field,
			OldValue:  &oldV,
			NewValue:  &newV,
			ChangedBy: &authCtx.Email,
		})
	}

	if req.Title != nil {
		title := sanitize.Text(*req.Title)
		if title == "" {
			s.writeErr(w, r, apperr.InvalidArgument("title cannot be empty"))
			return
		}
		if title != task.Title {
			record("title", task.Title, title)
			task.Title = title
		}
	}
	if req.Content != nil {
		content := sanitize.Text(*req.Content)
		if content != task.Content {
			record("content", task.Content, content)
			task.Content = content
		}
	}
	if req.Priority != nil {
		if !store.ValidTaskPriority(*req.Priority) {
			s.writeErr(w, r, apperr.InvalidArgument("invalid priority %q", *req.Priority))
			return
		}
		if *req.Priority != task.Priority {
			record("priority", task.Priority, *req.Priority)
			task.Priority = *req.Priority
		}
	}
	if req.Assignee != nil {
		assignee := sanitize.Text(*req.Assignee)
		old := ""
		if task.Assignee != nil {
			old = *task.Assignee
		}
		if assignee != old {
			record("assignee", old, assignee)
			if assignee == "" {
				task.Assignee = nil
			} else {
				task.Assignee = &assignee
			}
		}
	}
	if req.DueDate != nil {
		old := ""
		if task.DueDate != nil {
			old = task.DueDate.Format(dateLayout)
		}
		if *req.DueDate == "" {
			if task.DueDate != nil {
				record("due_date", old, "")
				task.DueDate = nil
			}
		} else {
			due, err := time.Parse(dateLayout, *req.DueDate)
			if err != nil {
				s.writeErr(w, r, apperr.InvalidArgument("due_date must be YYYY-MM-DD"))
				return
			}
			if due.Format(dateLayout) != old {
				record("due_date", old, due.Format(dateLayout))
				task.DueDate = &due
			}
		}
	}
	if req.Status != nil {
		if !store.ValidTaskStatus(*req.Status) {
			s.writeErr(w, r, apperr.InvalidArgument("invalid status %q", *req.Status))
			return
		}
		if *req.Status != task.Status {
			h := &store.TaskHistory{
				TaskID:    task.ID,
				Action:    store.HistoryActionStatusChanged,
				FieldName: strPtr("status"),
				OldValue:  strPtr(task.Status),
				NewValue:  req.Status,
				ChangedBy: &authCtx.Email,
			}
			if *req.Status == store.TaskStatusDone {
				h.Action = store.HistoryActionCompleted
				now := time.Now().UTC()
				task.CompletedAt = &now
			}
			history = append(history, h)
			task.Status = *req.Status
		}
	}

	if len(history) == 0 {
		s.writeJSON(w, http.StatusOK, taskResponse(task))
		return
	}

	if err := s.store.UpdateTask(r.Context(), task); err != nil {
		s.writeErr(w, r, err)
		return
	}
	for _, h := range history {
		s.appendHistory(r, h)
	}
	s.touchProject(r, task.ProjectID)
	s.writeJSON(w, http.StatusOK, taskResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	task, _, err := s.ownTask(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	if err := s.store.DeleteTask(r.Context(), task.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.logger.Info("task deleted", "task_id", task.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	task, _, err := s.ownTask(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	entries, err := s.store.ListTaskHistory(r.Context(), task.ID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	resp := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		resp = append(resp, historyResponse(h))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": resp})
}

// ownTask loads the task from the {id} path segment and verifies the caller
// owns its project.
func (s *Server) ownTask(r *http.Request) (*store.Task, *store.Project, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, nil, err
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	project, err := s.authorizeProject(r.Context(), auth.MustFromContext(r.Context()), task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return task, project, nil
}

// appendHistory records a history row best-effort.
func (s *Server) appendHistory(r *http.Request, h *store.TaskHistory) {
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now().UTC()
	}
	if err := s.store.AppendTaskHistory(r.Context(), h); err != nil {
		s.logger.Warn("failed to append task history", "task_id", h.TaskID, "error", err)
	}
}

func (s *Server) touchProject(r *http.Request, projectID int64) {
	if err := s.store.TouchProjectActivity(r.Context(), projectID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to touch project activity", "project_id", projectID, "error", err)
	}
}

func strPtr(s string) *string { return &s }
