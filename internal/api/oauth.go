// ABOUTME: OAuth authorization-code exchange against a configured provider.
// ABOUTME: Trades the code for an access token, then fetches the external identity.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/config"
)

// oauthIdentity is the provider-reported identity used to find or create the
// local account.
type oauthIdentity struct {
	ID    string
	Email string
	Name  string
}

// exchangeCode completes the OAuth flow: code -> access token -> identity.
// Provider failures surface as Unauthorized; the caller's code was bad or
// stale, not our server.
func (s *Server) exchangeCode(ctx context.Context, provider config.OAuthProvider, code string) (*oauthIdentity, error) {
	accessToken, err := s.fetchAccessToken(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	return s.fetchIdentity(ctx, provider, accessToken)
}

func (s *Server) fetchAccessToken(ctx context.Context, provider config.OAuthProvider, code string) (string, error) {
	form := url.Values{
		"client_id":     {provider.ClientID},
		"client_secret": {provider.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnauthorized, err, "oauth token exchange failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRequestBodySize))
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnauthorized, err, "oauth token exchange failed")
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("oauth token endpoint rejected exchange", "status", resp.StatusCode)
		return "", apperr.Unauthorized("oauth token exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", apperr.Wrap(apperr.KindUnauthorized, err, "oauth token exchange failed")
	}
	if payload.AccessToken == "" {
		s.logger.Warn("oauth token endpoint returned no token", "provider_error", payload.Error)
		return "", apperr.Unauthorized("oauth token exchange failed")
	}
	return payload.AccessToken, nil
}

func (s *Server) fetchIdentity(ctx context.Context, provider config.OAuthProvider, accessToken string) (*oauthIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoURL, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "oauth userinfo fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("oauth userinfo endpoint failed", "status", resp.StatusCode)
		return nil, apperr.Unauthorized("oauth userinfo fetch failed")
	}

	// Providers disagree on field names: GitHub uses numeric id and login,
	// OIDC providers use sub.
	var payload struct {
		ID    json.Number `json:"id"`
		Sub   string      `json:"sub"`
		Email string      `json:"email"`
		Name  string      `json:"name"`
		Login string      `json:"login"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxRequestBodySize)).Decode(&payload); err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "oauth userinfo fetch failed")
	}

	identity := &oauthIdentity{
		ID:    payload.ID.String(),
		Email: payload.Email,
		Name:  payload.Name,
	}
	if identity.ID == "" {
		identity.ID = payload.Sub
	}
	if identity.Name == "" {
		identity.Name = payload.Login
	}
	if identity.ID == "" {
		return nil, apperr.Unauthorized("oauth provider returned no user id")
	}
	return identity, nil
}
