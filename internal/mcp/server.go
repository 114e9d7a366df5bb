// ABOUTME: HTTP surface of the MCP gateway: tool discovery and tool calls.
// ABOUTME: Runs the fixed gate order rate limiter -> token authenticator -> dispatcher.

package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/ratelimit"
	"github.com/todoforai/todod/internal/store"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// CallRequest is the body of POST /api/v1/mcp/call.
type CallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolInfo describes one tool for discovery responses.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// envelope is the uniform response body for dispatched calls.
type envelope struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServerConfig holds the gateway server dependencies.
type ServerConfig struct {
	Registry      *Registry
	Authenticator *auth.TokenAuthenticator
	Limiter       *ratelimit.Limiter
	Logger        *slog.Logger
}

// Server serves the MCP gateway endpoints.
type Server struct {
	registry      *Registry
	authenticator *auth.TokenAuthenticator
	limiter       *ratelimit.Limiter
	logger        *slog.Logger
}

// NewServer creates the gateway server. All dependencies except the logger
// are required; the limiter is injected rather than owned so one instance
// can be shared and evicted centrally.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:      cfg.Registry,
		authenticator: cfg.Authenticator,
		limiter:       cfg.Limiter,
		logger:        logger.With("component", "mcp-server"),
	}, nil
}

// RegisterRoutes registers the gateway endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/mcp/tools", s.handleTools)
	mux.HandleFunc("POST /api/v1/mcp/call", s.handleCall)
}

// handleTools lists the available tools. Discovery runs behind the same
// gates as execution.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.gate(w, r); !ok {
		return
	}

	tools := s.registry.List()
	infos := make([]ToolInfo, len(tools))
	for i, t := range tools {
		infos[i] = ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: json.RawMessage(t.SchemaJSON),
		}
	}
	s.writeResult(w, map[string]any{"tools": infos})
}

// handleCall dispatches one tool call.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	user, token, ok := s.gate(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeError(w, http.StatusBadRequest, "request body too large")
		return
	}

	var req CallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "tool name is required")
		return
	}

	requestID := uuid.New().String()
	s.logger.Debug("tool call",
		"tool_name", req.Name,
		"request_id", requestID,
		"user_id", user.ID,
		"token_id", token.ID,
	)

	result, err := s.registry.Dispatch(r.Context(), user, req.Name, req.Arguments)
	if err != nil {
		s.writeDispatchError(w, req.Name, requestID, err)
		return
	}

	s.logger.Debug("tool call complete", "tool_name", req.Name, "request_id", requestID)
	s.writeResult(w, result)
}

// gate runs the pre-dispatch checks shared by both endpoints: rate limit
// first, then token authentication. Returns ok=false after writing the
// error response.
func (s *Server) gate(w http.ResponseWriter, r *http.Request) (*store.User, *store.APIToken, bool) {
	raw, authErrMsg := auth.ExtractBearerToken(r.Header.Get("Authorization"))

	if !s.limiter.Allow(clientKey(raw, r.RemoteAddr)) {
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return nil, nil, false
	}

	if authErrMsg != "" {
		s.writeError(w, http.StatusUnauthorized, authErrMsg)
		return nil, nil, false
	}
	user, token, err := s.authenticator.Authenticate(r.Context(), raw)
	if err != nil {
		s.writeError(w, apperr.HTTPStatus(err), apperr.ClientMessage(err))
		return nil, nil, false
	}
	return user, token, true
}

// clientKey derives the rate-limit key: a prefix of the credential hash when
// a bearer token is present, else the remote IP. Throttling keys on the
// presented credential even before it is verified, so an attacker cannot
// spend someone else's budget.
func clientKey(rawToken, remoteAddr string) string {
	if rawToken != "" {
		return auth.HashToken(rawToken)[:16]
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// writeDispatchError maps dispatch failures onto the response contract:
// domain errors stay inside a 200 envelope, gate-taxonomy errors map to
// their HTTP status, anything unclassified is logged and surfaced as a
// generic 500.
func (s *Server) writeDispatchError(w http.ResponseWriter, toolName, requestID string, err error) {
	var domain *DomainError
	if errors.As(err, &domain) {
		s.writeJSON(w, http.StatusOK, envelope{OK: false, Error: domain.Message})
		return
	}

	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("tool call failed",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
	} else {
		s.logger.Warn("tool call rejected",
			"tool_name", toolName,
			"request_id", requestID,
			"status", status,
			"error", err,
		)
	}
	s.writeError(w, status, apperr.ClientMessage(err))
}

func (s *Server) writeResult(w http.ResponseWriter, result any) {
	s.writeJSON(w, http.StatusOK, envelope{OK: true, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{OK: false, Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
