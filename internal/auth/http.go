// ABOUTME: HTTP middleware for session JWT authentication on REST endpoints
// ABOUTME: Extracts the bearer token, resolves the user, and attaches AuthContext

package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/todoforai/todod/internal/store"
)

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// SessionMiddleware creates an HTTP middleware that validates session JWTs.
// It resolves the user and adds AuthContext to the request context using the
// same WithAuth/FromContext pattern the MCP gateway uses for API tokens.
func SessionMiddleware(users store.UserStore, verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "user not found")
				return
			}
			if !user.IsActive() {
				writeAuthError(w, http.StatusForbidden, "user account is inactive")
				return
			}

			authCtx := &AuthContext{
				UserID: user.ID,
				Email:  user.Email,
				Role:   user.Role,
				Method: MethodSession,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdmin creates an HTTP middleware that requires the admin role.
// Must be used after SessionMiddleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				writeAuthError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !authCtx.IsAdmin() {
				writeAuthError(w, http.StatusForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
