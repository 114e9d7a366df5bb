// ABOUTME: Login endpoints: local email/password and OAuth code exchange.
// ABOUTME: Both issue a short-lived session JWT for subsequent REST calls.

package api

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/store"
)

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthLoginRequest is the body of POST /api/v1/auth/oauth/{provider}.
type OAuthLoginRequest struct {
	Code string `json:"code"`
}

// LoginResponse carries the session token and the logged-in user.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeErr(w, r, apperr.InvalidArgument("email and password are required"))
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.writeErr(w, r, apperr.Unauthorized("invalid credentials"))
		return
	}
	if err != nil {
		s.writeErr(w, r, apperr.Internal(err))
		return
	}
	if user.PasswordHash == "" {
		s.writeErr(w, r, apperr.Unauthorized("invalid credentials"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.writeErr(w, r, apperr.Unauthorized("invalid credentials"))
		return
	}

	s.issueSession(w, r, user)
}

func (s *Server) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	provider, ok := s.oauth[providerName]
	if !ok {
		s.writeErr(w, r, apperr.NotFound("unknown oauth provider %q", providerName))
		return
	}

	var req OAuthLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Code == "" {
		s.writeErr(w, r, apperr.InvalidArgument("code is required"))
		return
	}

	identity, err := s.exchangeCode(r.Context(), provider, req.Code)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	user, err := s.resolveOAuthUser(r.Context(), providerName, identity)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	s.issueSession(w, r, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	user, err := s.store.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, userResponse(user))
}

// resolveOAuthUser finds the account matching an external identity, creating
// one on first login.
func (s *Server) resolveOAuthUser(ctx context.Context, providerName string, identity *oauthIdentity) (*store.User, error) {
	user, err := s.store.GetUserByProvider(ctx, providerName, identity.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	if identity.Email == "" {
		return nil, apperr.Unauthorized("oauth provider returned no email")
	}

	user = &store.User{
		Email:          identity.Email,
		Name:           identity.Name,
		Provider:       providerName,
		ProviderUserID: identity.ID,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Account exists under this email with different credentials.
			return nil, apperr.Forbidden("email already registered with another login method")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.Info("created user from oauth login",
		"user_id", user.ID,
		"provider", providerName,
	)
	return user, nil
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, user *store.User) {
	if !user.IsActive() {
		s.writeErr(w, r, apperr.Forbidden("user account is inactive"))
		return
	}

	token, err := s.verifier.Generate(user.ID, s.sessionTTL)
	if err != nil {
		s.writeErr(w, r, apperr.Internal(err))
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	s.writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: userResponse(user)})
}
