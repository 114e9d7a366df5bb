// ABOUTME: Context rule CRUD handlers.
// ABOUTME: Rules are scoped to a project or global (null project_id) for their owner.

package api

import (
	"net/http"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/sanitize"
	"github.com/todoforai/todod/internal/store"
)

// RuleRequest is the body for creating or updating a context rule.
type RuleRequest struct {
	ProjectID    *int64  `json:"project_id"` // null or absent = global rule
	Name         *string `json:"name"`
	Content      *string `json:"content"`
	Priority     *int    `json:"priority"`
	IsActive     *bool   `json:"is_active"`
	ApplyToTasks *bool   `json:"apply_to_tasks"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	rules, err := s.store.ListRules(r.Context(), authCtx.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	resp := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, ruleResponse(rule))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"context_rules": resp})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Name == nil || sanitize.Text(*req.Name) == "" {
		s.writeErr(w, r, apperr.InvalidArgument("name is required"))
		return
	}
	if req.Content == nil || sanitize.Text(*req.Content) == "" {
		s.writeErr(w, r, apperr.InvalidArgument("content is required"))
		return
	}
	if req.ProjectID != nil {
		if _, err := s.authorizeProject(r.Context(), authCtx, *req.ProjectID); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	rule := &store.ContextRule{
		ProjectID:    req.ProjectID,
		UserID:       authCtx.UserID,
		Name:         sanitize.Text(*req.Name),
		Content:      sanitize.Text(*req.Content),
		IsActive:     true,
		ApplyToTasks: true,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.ApplyToTasks != nil {
		rule.ApplyToTasks = *req.ApplyToTasks
	}

	if err := s.store.CreateRule(r.Context(), rule); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.logger.Info("context rule created", "rule_id", rule.ID, "user_id", authCtx.UserID)
	s.writeJSON(w, http.StatusCreated, ruleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	rule, err := s.ownRule(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Name != nil {
		name := sanitize.Text(*req.Name)
		if name == "" {
			s.writeErr(w, r, apperr.InvalidArgument("name cannot be empty"))
			return
		}
		rule.Name = name
	}
	if req.Content != nil {
		rule.Content = sanitize.Text(*req.Content)
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.ApplyToTasks != nil {
		rule.ApplyToTasks = *req.ApplyToTasks
	}
	if req.ProjectID != nil {
		if _, err := s.authorizeProject(r.Context(), authCtx, *req.ProjectID); err != nil {
			s.writeErr(w, r, err)
			return
		}
		rule.ProjectID = req.ProjectID
	}

	if err := s.store.UpdateRule(r.Context(), rule); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ruleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.ownRule(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	if err := s.store.DeleteRule(r.Context(), rule.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownRule loads the rule from the {id} path segment and verifies ownership.
func (s *Server) ownRule(r *http.Request) (*store.ContextRule, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	rule, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		return nil, err
	}
	authCtx := auth.MustFromContext(r.Context())
	if rule.UserID != authCtx.UserID && !authCtx.IsAdmin() {
		return nil, apperr.Forbidden("access denied")
	}
	return rule, nil
}
