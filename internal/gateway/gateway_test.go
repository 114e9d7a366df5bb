// ABOUTME: Tests gateway wiring end to end against an in-memory HTTP handler.
// ABOUTME: Verifies the health endpoint and that both API surfaces are mounted.
package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoforai/todod/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr:     "127.0.0.1:0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: config.DatabaseConfig{
			Path: filepath.Join(t.TempDir(), "todod.db"),
		},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			SessionTTL: time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			MaxRequests: 60,
			Window:      time.Minute,
		},
	}
}

func TestGatewayRoutes(t *testing.T) {
	gw, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	srv := httptest.NewServer(gw.httpServer.Handler)
	defer srv.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", "GET", "/health", 200},
		{"mcp tools require auth", "GET", "/api/v1/mcp/tools", 401},
		{"mcp call requires auth", "POST", "/api/v1/mcp/call", 401},
		{"projects require auth", "GET", "/api/v1/projects", 401},
		{"login is public", "POST", "/api/v1/auth/login", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(t.Context(), tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestGatewayRunShutdown(t *testing.T) {
	gw, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
