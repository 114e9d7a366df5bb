// ABOUTME: API token management handlers: create, list, revoke.
// ABOUTME: The raw secret is returned once at creation; only the hash is stored.

package api

import (
	"net/http"
	"time"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/sanitize"
	"github.com/todoforai/todod/internal/store"
)

// CreateTokenRequest is the body of POST /api/v1/api-tokens.
type CreateTokenRequest struct {
	Name      string `json:"name"`
	ExpiresAt string `json:"expires_at,omitempty"` // RFC3339, optional
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	tokens, err := s.store.ListAPITokens(r.Context(), authCtx.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	resp := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, tokenResponse(t))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"api_tokens": resp})
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req CreateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	name := sanitize.Text(req.Name)
	if name == "" {
		s.writeErr(w, r, apperr.InvalidArgument("name is required"))
		return
	}

	token := &store.APIToken{
		UserID:   authCtx.UserID,
		Name:     name,
		IsActive: true,
	}
	if req.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			s.writeErr(w, r, apperr.InvalidArgument("expires_at must be RFC3339"))
			return
		}
		if expires.Before(time.Now()) {
			s.writeErr(w, r, apperr.InvalidArgument("expires_at is in the past"))
			return
		}
		token.ExpiresAt = &expires
	}

	raw, hash, prefix, err := auth.GenerateAPIToken()
	if err != nil {
		s.writeErr(w, r, apperr.Internal(err))
		return
	}
	token.TokenHash = hash
	token.Prefix = prefix

	if err := s.store.CreateAPIToken(r.Context(), token); err != nil {
		s.writeErr(w, r, err)
		return
	}

	s.logger.Info("api token created", "token_id", token.ID, "user_id", authCtx.UserID)
	s.writeJSON(w, http.StatusCreated, CreateTokenResponse{
		Token: tokenResponse(token),
		Raw:   raw,
	})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	token, err := s.store.GetAPIToken(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if token.UserID != authCtx.UserID && !authCtx.IsAdmin() {
		s.writeErr(w, r, apperr.Forbidden("access denied"))
		return
	}

	if err := s.store.DeleteAPIToken(r.Context(), token.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.logger.Info("api token deleted", "token_id", token.ID)
	w.WriteHeader(http.StatusNoContent)
}
