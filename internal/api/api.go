// ABOUTME: REST API server for the human-facing surface: auth, projects, tasks, rules, tokens.
// ABOUTME: All routes live under /api/v1 and require a session JWT except the login endpoints.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/config"
	"github.com/todoforai/todod/internal/store"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// ServerConfig holds the REST server dependencies.
type ServerConfig struct {
	Store      store.Store
	Verifier   *auth.JWTVerifier
	SessionTTL time.Duration
	OAuth      map[string]config.OAuthProvider
	Logger     *slog.Logger

	// HTTPClient is used for OAuth code exchange. Defaults to a client with
	// a 10 second timeout.
	HTTPClient *http.Client
}

// Server handles the REST routes.
type Server struct {
	store      store.Store
	verifier   *auth.JWTVerifier
	sessionTTL time.Duration
	oauth      map[string]config.OAuthProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewServer creates the REST server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = 24 * time.Hour
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      cfg.Store,
		verifier:   cfg.Verifier,
		sessionTTL: sessionTTL,
		oauth:      cfg.OAuth,
		httpClient: httpClient,
		logger:     logger.With("component", "api"),
	}, nil
}

// RegisterRoutes registers all REST routes on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Public: login endpoints
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/oauth/{provider}", s.handleOAuthLogin)

	// Everything else requires a session
	mux.Handle("GET /api/v1/users/me", s.authed(s.handleMe))

	mux.Handle("GET /api/v1/projects", s.authed(s.handleListProjects))
	mux.Handle("POST /api/v1/projects", s.authed(s.handleCreateProject))
	mux.Handle("GET /api/v1/projects/{id}", s.authed(s.handleGetProject))
	mux.Handle("PUT /api/v1/projects/{id}", s.authed(s.handleUpdateProject))
	mux.Handle("DELETE /api/v1/projects/{id}", s.authed(s.handleDeleteProject))

	mux.Handle("GET /api/v1/tasks", s.authed(s.handleListTasks))
	mux.Handle("POST /api/v1/tasks", s.authed(s.handleCreateTask))
	mux.Handle("GET /api/v1/tasks/{id}", s.authed(s.handleGetTask))
	mux.Handle("PUT /api/v1/tasks/{id}", s.authed(s.handleUpdateTask))
	mux.Handle("DELETE /api/v1/tasks/{id}", s.authed(s.handleDeleteTask))
	mux.Handle("GET /api/v1/tasks/{id}/history", s.authed(s.handleTaskHistory))

	mux.Handle("GET /api/v1/context-rules", s.authed(s.handleListRules))
	mux.Handle("POST /api/v1/context-rules", s.authed(s.handleCreateRule))
	mux.Handle("PUT /api/v1/context-rules/{id}", s.authed(s.handleUpdateRule))
	mux.Handle("DELETE /api/v1/context-rules/{id}", s.authed(s.handleDeleteRule))

	mux.Handle("GET /api/v1/api-tokens", s.authed(s.handleListTokens))
	mux.Handle("POST /api/v1/api-tokens", s.authed(s.handleCreateToken))
	mux.Handle("DELETE /api/v1/api-tokens/{id}", s.authed(s.handleDeleteToken))
}

// authed wraps a handler with the session JWT middleware.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return auth.SessionMiddleware(s.store, s.verifier)(h)
}

// decodeJSON reads and decodes a bounded JSON request body.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return apperr.InvalidArgument("failed to read request body")
	}
	if int64(len(body)) > MaxRequestBodySize {
		return apperr.InvalidArgument("request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.InvalidArgument("invalid JSON")
	}
	return nil
}

// pathID parses the {id} path segment as an int64.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, apperr.InvalidArgument("invalid id")
	}
	return id, nil
}

// queryInt64 parses an optional int64 query parameter, returning 0 if absent.
func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.InvalidArgument("invalid %s", key)
	}
	return v, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// writeErr maps an error onto its HTTP status. Store sentinel errors become
// 404s; unclassified errors are logged and answered with a generic 500.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if errors.Is(err, store.ErrDuplicate) {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "already exists"})
		return
	}
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": apperr.ClientMessage(err)})
}
