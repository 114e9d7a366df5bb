// ABOUTME: Tests for context rule persistence
// ABOUTME: Covers global vs project scope and applicable-rule priority ordering

package store

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAndGetRule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "owner@example.com")
	p := mustCreateProject(t, s, u.ID, "proj")

	r := &ContextRule{ProjectID: &p.ID, UserID: u.ID, Name: "style", Content: "use tabs", Priority: 5, IsActive: true, ApplyToTasks: true}
	if err := s.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.IsGlobal() {
		t.Error("project rule should not be global")
	}
	if got.Priority != 5 || got.Content != "use tabs" {
		t.Errorf("GetRule = %+v", got)
	}
}

func TestGlobalRule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "owner@example.com")

	r := &ContextRule{UserID: u.ID, Name: "tone", Content: "be terse", IsActive: true, ApplyToTasks: true}
	if err := s.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if !got.IsGlobal() {
		t.Error("rule without project should be global")
	}
}

func TestListApplicableRules_PriorityOrderAndScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "owner@example.com")
	stranger := mustCreateUser(t, s, "stranger@example.com")
	p := mustCreateProject(t, s, u.ID, "proj")
	otherProject := mustCreateProject(t, s, u.ID, "other")

	rules := []*ContextRule{
		{ProjectID: &p.ID, UserID: u.ID, Name: "low", Content: "c", Priority: 1, IsActive: true, ApplyToTasks: true},
		{ProjectID: &p.ID, UserID: u.ID, Name: "high", Content: "c", Priority: 10, IsActive: true, ApplyToTasks: true},
		{UserID: u.ID, Name: "global-mid", Content: "c", Priority: 5, IsActive: true, ApplyToTasks: true},
		// Excluded: inactive, not task-scoped, other project, other user's global.
		{ProjectID: &p.ID, UserID: u.ID, Name: "inactive", Content: "c", Priority: 99, IsActive: false, ApplyToTasks: true},
		{ProjectID: &p.ID, UserID: u.ID, Name: "projects-only", Content: "c", Priority: 98, IsActive: true, ApplyToTasks: false},
		{ProjectID: &otherProject.ID, UserID: u.ID, Name: "elsewhere", Content: "c", Priority: 97, IsActive: true, ApplyToTasks: true},
		{UserID: stranger.ID, Name: "stranger-global", Content: "c", Priority: 96, IsActive: true, ApplyToTasks: true},
	}
	for _, r := range rules {
		if err := s.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) failed: %v", r.Name, err)
		}
	}

	got, err := s.ListApplicableRules(ctx, p.ID, u.ID)
	if err != nil {
		t.Fatalf("ListApplicableRules failed: %v", err)
	}

	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	want := []string{"high", "global-mid", "low"}
	if len(names) != len(want) {
		t.Fatalf("ListApplicableRules = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("rule %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestUpdateAndDeleteRule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "owner@example.com")

	r := &ContextRule{UserID: u.ID, Name: "old", Content: "old", IsActive: true, ApplyToTasks: true}
	if err := s.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	r.Name = "new"
	r.IsActive = false
	if err := s.UpdateRule(ctx, r); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}

	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Name != "new" || got.IsActive {
		t.Errorf("after update = %+v", got)
	}

	if err := s.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if _, err := s.GetRule(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted rule = %v, want ErrNotFound", err)
	}
}

func TestUpdateRule_RescopesProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustCreateUser(t, s, "owner@example.com")
	first := mustCreateProject(t, s, u.ID, "first")
	second := mustCreateProject(t, s, u.ID, "second")

	r := &ContextRule{ProjectID: &first.ID, UserID: u.ID, Name: "style", Content: "c", IsActive: true, ApplyToTasks: true}
	if err := s.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	r.ProjectID = &second.ID
	if err := s.UpdateRule(ctx, r); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}

	got, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.ProjectID == nil || *got.ProjectID != second.ID {
		t.Errorf("project_id = %v, want %d", got.ProjectID, second.ID)
	}

	// Re-scope to global.
	r.ProjectID = nil
	if err := s.UpdateRule(ctx, r); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}

	got, err = s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if !got.IsGlobal() {
		t.Errorf("project_id = %v, want global", got.ProjectID)
	}
}
