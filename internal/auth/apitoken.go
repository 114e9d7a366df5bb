// ABOUTME: API token generation and verification for AI-client authentication
// ABOUTME: Raw tokens are random; only the SHA-256 hash is stored or compared

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/store"
)

// PrefixLen is how many characters of the raw token are kept for display.
const PrefixLen = 8

// GenerateAPIToken creates a new random bearer credential. It returns the raw
// token (shown to the user exactly once), its SHA-256 hash for storage, and
// the display prefix.
func GenerateAPIToken() (raw, hash, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generating token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashToken(raw), raw[:PrefixLen], nil
}

// HashToken returns the hex-encoded SHA-256 of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenAuthenticator resolves raw bearer credentials to users.
type TokenAuthenticator struct {
	tokens store.TokenStore
	users  store.UserStore
	logger *slog.Logger

	now func() time.Time
}

// NewTokenAuthenticator creates an authenticator backed by the given stores.
func NewTokenAuthenticator(tokens store.TokenStore, users store.UserStore, logger *slog.Logger) *TokenAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuthenticator{
		tokens: tokens,
		users:  users,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
}

// Authenticate validates a raw bearer token and returns the owning user and
// the token record. All failures map to Unauthorized except a suspended
// account, which is Forbidden. On success the token's usage stats are updated
// best-effort without blocking the caller.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, raw string) (*store.User, *store.APIToken, error) {
	if raw == "" {
		return nil, nil, apperr.Unauthorized("empty token")
	}

	token, err := a.tokens.GetAPITokenByHash(ctx, HashToken(raw))
	if err != nil {
		return nil, nil, apperr.Unauthorized("invalid or expired token")
	}
	if !token.IsActive {
		a.logger.Warn("rejected inactive token", "token_id", token.ID)
		return nil, nil, apperr.Unauthorized("token is inactive")
	}
	if token.ExpiresAt != nil && token.ExpiresAt.Before(a.now()) {
		a.logger.Warn("rejected expired token", "token_id", token.ID, "expires_at", token.ExpiresAt)
		return nil, nil, apperr.Unauthorized("token has expired")
	}

	user, err := a.users.GetUser(ctx, token.UserID)
	if err != nil {
		a.logger.Warn("token has no associated user", "token_id", token.ID, "user_id", token.UserID)
		return nil, nil, apperr.Unauthorized("no user associated with this token")
	}
	if !user.IsActive() {
		return nil, nil, apperr.Forbidden("user account is inactive")
	}

	// Usage stats are advisory; a failed update never fails the request.
	go func() {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.tokens.RecordAPITokenUse(bg, token.ID, a.now().UTC()); err != nil {
			a.logger.Warn("failed to update token usage stats", "token_id", token.ID, "error", err)
		}
	}()

	return user, token, nil
}
