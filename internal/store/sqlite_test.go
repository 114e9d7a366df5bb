// ABOUTME: Tests for SQLite store setup and user persistence
// ABOUTME: Covers schema creation, duplicate detection, and provider lookup

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newTestStore opens a fresh store in a temp directory with a seeded owner user.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustCreateUser inserts a user and fails the test on error.
func mustCreateUser(t *testing.T, s *SQLiteStore, email string) *User {
	t.Helper()
	u := &User{Email: email, Name: "Test User"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return u
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateUser_AssignsIDAndDefaults(t *testing.T) {
	s := newTestStore(t)

	u := &User{Email: "alice@example.com"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if u.ID == 0 {
		t.Error("CreateUser should assign an id")
	}
	if u.Role != RoleUser || u.Status != UserStatusActive {
		t.Errorf("defaults = role %q status %q", u.Role, u.Status)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	mustCreateUser(t, s, "alice@example.com")

	err := s.CreateUser(context.Background(), &User{Email: "alice@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("CreateUser duplicate = %v, want ErrDuplicate", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	s := newTestStore(t)
	created := mustCreateUser(t, s, "bob@example.com")

	got, err := s.GetUserByEmail(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetUserByEmail id = %d, want %d", got.ID, created.ID)
	}

	if _, err := s.GetUserByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user = %v, want ErrNotFound", err)
	}
}

func TestGetUserByProvider(t *testing.T) {
	s := newTestStore(t)

	u := &User{Email: "oauth@example.com", Provider: "github", ProviderUserID: "gh-42"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := s.GetUserByProvider(context.Background(), "github", "gh-42")
	if err != nil {
		t.Fatalf("GetUserByProvider failed: %v", err)
	}
	if got.Email != "oauth@example.com" {
		t.Errorf("GetUserByProvider email = %q", got.Email)
	}

	if _, err := s.GetUserByProvider(context.Background(), "github", "gh-999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing provider identity = %v, want ErrNotFound", err)
	}
}
