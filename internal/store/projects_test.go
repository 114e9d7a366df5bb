// ABOUTME: Tests for project persistence
// ABOUTME: Covers CRUD, cascade deletion of tasks and rules, and statistics

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustCreateProject(t *testing.T, s *SQLiteStore, ownerID int64, name string) *Project {
	t.Helper()
	p := &Project{OwnerID: ownerID, Name: name}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject(%s) failed: %v", name, err)
	}
	return p
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	owner := mustCreateUser(t, s, "owner@example.com")

	p := mustCreateProject(t, s, owner.ID, "website")

	got, err := s.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "website" || got.OwnerID != owner.ID {
		t.Errorf("GetProject = %+v", got)
	}
	if got.Color != "#1890ff" || got.Status != ProjectStatusActive {
		t.Errorf("defaults = color %q status %q", got.Color, got.Status)
	}
}

func TestGetProjectByName(t *testing.T) {
	s := newTestStore(t)
	owner := mustCreateUser(t, s, "owner@example.com")
	stranger := mustCreateUser(t, s, "stranger@example.com")
	mustCreateProject(t, s, owner.ID, "backend")
	mustCreateProject(t, s, stranger.ID, "backend")

	got, err := s.GetProjectByName(context.Background(), owner.ID, "backend")
	if err != nil {
		t.Fatalf("GetProjectByName failed: %v", err)
	}
	if got.Name != "backend" || got.OwnerID != owner.ID {
		t.Errorf("GetProjectByName = %+v, want owner %d", got, owner.ID)
	}

	if _, err := s.GetProjectByName(context.Background(), owner.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing project = %v, want ErrNotFound", err)
	}
}

func TestListProjects_OnlyOwner(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateUser(t, s, "a@example.com")
	b := mustCreateUser(t, s, "b@example.com")
	mustCreateProject(t, s, a.ID, "a-one")
	mustCreateProject(t, s, a.ID, "a-two")
	mustCreateProject(t, s, b.ID, "b-one")

	got, err := s.ListProjects(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListProjects returned %d projects, want 2", len(got))
	}
	for _, p := range got {
		if p.OwnerID != a.ID {
			t.Errorf("project %q owned by %d, want %d", p.Name, p.OwnerID, a.ID)
		}
	}
}

func TestUpdateProject(t *testing.T) {
	s := newTestStore(t)
	owner := mustCreateUser(t, s, "owner@example.com")
	p := mustCreateProject(t, s, owner.ID, "old-name")

	p.Name = "new-name"
	p.Status = ProjectStatusArchived
	if err := s.UpdateProject(context.Background(), p); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}

	got, err := s.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "new-name" || got.Status != ProjectStatusArchived {
		t.Errorf("after update = %+v", got)
	}
}

func TestDeleteProject_CascadesTasksAndRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner@example.com")
	p := mustCreateProject(t, s, owner.ID, "doomed")

	task := &Task{ProjectID: p.ID, Title: "t1"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	rule := &ContextRule{ProjectID: &p.ID, UserID: owner.ID, Name: "r1", Content: "use tabs", IsActive: true, ApplyToTasks: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	hist := &TaskHistory{TaskID: task.ID, Action: HistoryActionCreated}
	if err := s.AppendTaskHistory(ctx, hist); err != nil {
		t.Fatalf("AppendTaskHistory failed: %v", err)
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("task after cascade = %v, want ErrNotFound", err)
	}
	if _, err := s.GetRule(ctx, rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("rule after cascade = %v, want ErrNotFound", err)
	}
	entries, err := s.ListTaskHistory(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListTaskHistory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("history after cascade = %d entries, want 0", len(entries))
	}
}

func TestDeleteProject_NotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteProject(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteProject missing = %v, want ErrNotFound", err)
	}
}

func TestTouchProjectActivity(t *testing.T) {
	s := newTestStore(t)
	owner := mustCreateUser(t, s, "owner@example.com")
	p := mustCreateProject(t, s, owner.ID, "active")

	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := s.TouchProjectActivity(context.Background(), p.ID, at); err != nil {
		t.Fatalf("TouchProjectActivity failed: %v", err)
	}

	got, err := s.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.LastActivityAt == nil || !got.LastActivityAt.Equal(at) {
		t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, at)
	}
}

func TestGetProjectStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner@example.com")
	p := mustCreateProject(t, s, owner.ID, "stats")

	for _, status := range []string{TaskStatusTodo, TaskStatusTodo, TaskStatusInProgress, TaskStatusDone} {
		if err := s.CreateTask(ctx, &Task{ProjectID: p.ID, Title: "t", Status: status}); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}
	rule := &ContextRule{ProjectID: &p.ID, UserID: owner.ID, Name: "r", Content: "c", IsActive: true, ApplyToTasks: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	stats, err := s.GetProjectStats(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProjectStats failed: %v", err)
	}
	if stats.TotalTasks != 4 || stats.TodoTasks != 2 || stats.InProgressTasks != 1 || stats.DoneTasks != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ContextRules != 1 {
		t.Errorf("ContextRules = %d, want 1", stats.ContextRules)
	}

	if _, err := s.GetProjectStats(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("stats for missing project = %v, want ErrNotFound", err)
	}
}
