// ABOUTME: Project CRUD handlers: list, create, get, update, delete.
// ABOUTME: Deleting a project cascades its tasks and context rules.

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/sanitize"
	"github.com/todoforai/todod/internal/store"
)

const defaultProjectColor = "#1890ff"

// ProjectRequest is the body for creating or updating a project.
type ProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	Status      *string `json:"status"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	includeStats := r.URL.Query().Get("include_stats") == "true"

	projects, err := s.store.ListProjects(r.Context(), authCtx.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		var stats *store.ProjectStats
		if includeStats {
			stats, err = s.store.GetProjectStats(r.Context(), p.ID)
			if err != nil {
				s.writeErr(w, r, err)
				return
			}
		}
		resp = append(resp, projectResponse(p, stats))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"projects": resp})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req ProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Name == nil || sanitize.Text(*req.Name) == "" {
		s.writeErr(w, r, apperr.InvalidArgument("name is required"))
		return
	}

	project := &store.Project{
		OwnerID: authCtx.UserID,
		Name:    sanitize.Text(*req.Name),
		Color:   defaultProjectColor,
		Status:  store.ProjectStatusActive,
	}
	if req.Description != nil {
		project.Description = sanitize.Text(*req.Description)
	}
	if req.Color != nil && *req.Color != "" {
		project.Color = *req.Color
	}

	if err := s.store.CreateProject(r.Context(), project); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.logger.Info("project created", "project_id", project.ID, "user_id", authCtx.UserID)
	s.writeJSON(w, http.StatusCreated, projectResponse(project, nil))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var stats *store.ProjectStats
	if r.URL.Query().Get("include_stats") == "true" {
		stats, err = s.store.GetProjectStats(r.Context(), project.ID)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, projectResponse(project, stats))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var req ProjectRequest
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
		project.Name = name
	}
	if req.Description != nil {
		project.Description = sanitize.Text(*req.Description)
	}
	if req.Color != nil {
		project.Color = *req.Color
	}
	if req.Status != nil {
		if *req.Status != store.ProjectStatusActive && *req.Status != store.ProjectStatusArchived {
			s.writeErr(w, r, apperr.InvalidArgument("invalid status %q", *req.Status))
			return
		}
		project.Status = *req.Status
	}

	if err := s.store.UpdateProject(r.Context(), project); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, projectResponse(project, nil))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	// Tasks and rules go with the project via the schema's cascades.
	if err := s.store.DeleteProject(r.Context(), project.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.logger.Info("project deleted", "project_id", project.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownProject loads the project from the {id} path segment and verifies the
// caller owns it.
func (s *Server) ownProject(r *http.Request) (*store.Project, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	return s.authorizeProject(r.Context(), auth.MustFromContext(r.Context()), id)
}

func (s *Server) authorizeProject(ctx context.Context, authCtx *auth.AuthContext, id int64) (*store.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if project.OwnerID != authCtx.UserID && !authCtx.IsAdmin() {
		return nil, apperr.Forbidden("access denied")
	}
	return project, nil
}
