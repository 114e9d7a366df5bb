// ABOUTME: Test fixture for the REST API plus login endpoint coverage
// ABOUTME: Exercises local login, OAuth code exchange, and session enforcement

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/config"
	"github.com/todoforai/todod/internal/store"
)

type fixture struct {
	store    *store.SQLiteStore
	handler  http.Handler
	verifier *auth.JWTVerifier
}

func newFixture(t *testing.T, oauth map[string]config.OAuthProvider) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	srv, err := NewServer(ServerConfig{
		Store:      s,
		Verifier:   verifier,
		SessionTTL: time.Hour,
		OAuth:      oauth,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return &fixture{store: s, handler: mux, verifier: verifier}
}

func (f *fixture) createUser(t *testing.T, email, password string) *store.User {
	t.Helper()
	u := &store.User{Email: email}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		u.PasswordHash = string(hash)
	}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) session(t *testing.T, user *store.User) string {
	t.Helper()
	token, err := f.verifier.Generate(user.ID, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	user := f.createUser(t, "alice@example.com", "hunter22")

	t.Run("success", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			`{"email": "alice@example.com", "password": "hunter22"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		decodeBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, user.ID, resp.User.ID)

		// The issued token works on an authenticated route.
		me := f.do(t, http.MethodGet, "/api/v1/users/me", resp.Token, "")
		assert.Equal(t, http.StatusOK, me.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			`{"email": "alice@example.com", "password": "nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			`{"email": "ghost@example.com", "password": "hunter22"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("oauth-only account has no password", func(t *testing.T) {
		f.createUser(t, "oauth-only@example.com", "")
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
			`{"email": "oauth-only@example.com", "password": "anything"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email": "alice@example.com"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOAuthLogin(t *testing.T) {
	// Fake provider: exchanges the code "good-code" and reports one identity.
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			w.Header().Set("Content-Type", "application/json")
			if r.FormValue("code") != "good-code" {
				fmt.Fprint(w, `{"error": "bad_verification_code"}`)
				return
			}
			fmt.Fprint(w, `{"access_token": "provider-access-token"}`)
		case "/user":
			if r.Header.Get("Authorization") != "Bearer provider-access-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id": 4242, "login": "octocat", "email": "octo@example.com"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer provider.Close()

	f := newFixture(t, map[string]config.OAuthProvider{
		"github": {
			ClientID:     "cid",
			ClientSecret: "secret",
			TokenURL:     provider.URL + "/token",
			UserInfoURL:  provider.URL + "/user",
		},
	})

	t.Run("first login creates the user", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/oauth/github", "", `{"code": "good-code"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, "octo@example.com", resp.User.Email)
		assert.Equal(t, "github", resp.User.Provider)

		user, err := f.store.GetUserByProvider(context.Background(), "github", "4242")
		require.NoError(t, err)
		assert.Equal(t, "octocat", user.Name)
	})

	t.Run("second login reuses the account", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/oauth/github", "", `{"code": "good-code"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		existing, err := f.store.GetUserByProvider(context.Background(), "github", "4242")
		require.NoError(t, err)

		var resp LoginResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, existing.ID, resp.User.ID)
	})

	t.Run("bad code", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/oauth/github", "", `{"code": "stale"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown provider", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/oauth/gitlab", "", `{"code": "good-code"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/oauth/github", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthenticatedRoutesRejectAnonymous(t *testing.T) {
	f := newFixture(t, nil)

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/users/me"},
		{http.MethodGet, "/api/v1/projects"},
		{http.MethodPost, "/api/v1/tasks"},
		{http.MethodGet, "/api/v1/context-rules"},
		{http.MethodPost, "/api/v1/api-tokens"},
	}
	for _, p := range paths {
		rec := f.do(t, p.method, p.path, "", "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t, nil)
	user := f.createUser(t, "me@example.com", "pw")

	rec := f.do(t, http.MethodGet, "/api/v1/users/me", f.session(t, user), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, user.ID, resp.ID)
	assert.Equal(t, "me@example.com", resp.Email)
}
