// ABOUTME: HTTP tests for the gateway endpoints and their gate order
// ABOUTME: Covers auth failures, throttling, status mapping, and the response envelope

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoforai/todod/internal/auth"
	"github.com/todoforai/todod/internal/ratelimit"
	"github.com/todoforai/todod/internal/store"
)

type gatewayFixture struct {
	store   *store.SQLiteStore
	handler http.Handler
	user    *store.User
	token   string
}

func newGateway(t *testing.T, limiter *ratelimit.Limiter) *gatewayFixture {
	t.Helper()
	s := newTestStore(t)

	user := mustUser(t, s, "agent@example.com")
	raw, hash, prefix, err := auth.GenerateAPIToken()
	require.NoError(t, err)
	require.NoError(t, s.CreateAPIToken(context.Background(), &store.APIToken{
		UserID: user.ID, Name: "gateway-test", TokenHash: hash, Prefix: prefix, IsActive: true,
	}))

	reg, err := NewToolset(s, nil).NewRegistry()
	require.NoError(t, err)

	if limiter == nil {
		limiter = ratelimit.New(60, time.Minute)
	}
	srv, err := NewServer(ServerConfig{
		Registry:      reg,
		Authenticator: auth.NewTokenAuthenticator(s, s, nil),
		Limiter:       limiter,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	return &gatewayFixture{store: s, handler: mux, user: user, token: raw}
}

func (f *gatewayFixture) call(t *testing.T, token, tool string, args string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"name": %q, "arguments": %s}`, tool, args)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp/call", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, map[string]any, string) {
	t.Helper()
	var body struct {
		OK     bool           `json:"ok"`
		Result map[string]any `json:"result"`
		Error  string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.OK, body.Result, body.Error
}

func TestCall_Success(t *testing.T) {
	f := newGateway(t, nil)
	mustProject(t, f.store, f.user.ID, "alpha")

	rec := f.call(t, f.token, "list_projects", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	ok, result, _ := decodeEnvelope(t, rec)
	assert.True(t, ok)
	assert.Equal(t, float64(1), result["count"])
}

func TestCall_MissingToken(t *testing.T) {
	f := newGateway(t, nil)
	p := mustProject(t, f.store, f.user.ID, "alpha")

	rec := f.call(t, "", "create_task", fmt.Sprintf(`{"project_id": %d, "title": "sneaky"}`, p.ID))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	ok, _, errMsg := decodeEnvelope(t, rec)
	assert.False(t, ok)
	assert.NotEmpty(t, errMsg)

	// Rejected before the handler: nothing was written.
	tasks, err := f.store.ListTasks(context.Background(), store.TaskFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCall_InvalidToken(t *testing.T) {
	f := newGateway(t, nil)

	rec := f.call(t, "never-issued", "list_projects", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCall_ExpiredToken(t *testing.T) {
	f := newGateway(t, nil)

	raw, hash, prefix, err := auth.GenerateAPIToken()
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.store.CreateAPIToken(context.Background(), &store.APIToken{
		UserID: f.user.ID, Name: "stale", TokenHash: hash, Prefix: prefix,
		IsActive: true, ExpiresAt: &past,
	}))

	rec := f.call(t, raw, "list_projects", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCall_UnknownTool(t *testing.T) {
	f := newGateway(t, nil)

	rec := f.call(t, f.token, "drop_all_tables", `{"anything": true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	ok, _, errMsg := decodeEnvelope(t, rec)
	assert.False(t, ok)
	assert.Contains(t, errMsg, "unknown tool")
}

func TestCall_CrossUserForbidden(t *testing.T) {
	f := newGateway(t, nil)
	other := mustUser(t, f.store, "other@example.com")
	p := mustProject(t, f.store, other.ID, "not-yours")

	rec := f.call(t, f.token, "get_project_info", fmt.Sprintf(`{"project_id": %d}`, p.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCall_SchemaViolation(t *testing.T) {
	f := newGateway(t, nil)

	rec := f.call(t, f.token, "get_task_by_id", `{"task_id": "not-a-number"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCall_DomainErrorStaysInEnvelope(t *testing.T) {
	f := newGateway(t, nil)
	mustProject(t, f.store, f.user.ID, "alpha")

	rec := f.call(t, f.token, "get_project_tasks_by_name", `{"project_name": "nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ok, _, errMsg := decodeEnvelope(t, rec)
	assert.False(t, ok)
	assert.Contains(t, errMsg, "alpha")
}

func TestCall_RateLimit(t *testing.T) {
	f := newGateway(t, ratelimit.New(3, time.Minute))

	for i := 0; i < 3; i++ {
		rec := f.call(t, f.token, "list_projects", `{}`)
		require.Equal(t, http.StatusOK, rec.Code, "call %d", i+1)
	}

	rec := f.call(t, f.token, "list_projects", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	ok, _, errMsg := decodeEnvelope(t, rec)
	assert.False(t, ok)
	assert.Contains(t, errMsg, "rate limit")
}

func TestCall_RateLimitKeyedPerCredential(t *testing.T) {
	f := newGateway(t, ratelimit.New(1, time.Minute))

	require.Equal(t, http.StatusOK, f.call(t, f.token, "list_projects", `{}`).Code)
	require.Equal(t, http.StatusTooManyRequests, f.call(t, f.token, "list_projects", `{}`).Code)

	// A second credential has its own budget.
	raw, hash, prefix, err := auth.GenerateAPIToken()
	require.NoError(t, err)
	require.NoError(t, f.store.CreateAPIToken(context.Background(), &store.APIToken{
		UserID: f.user.ID, Name: "second", TokenHash: hash, Prefix: prefix, IsActive: true,
	}))
	assert.Equal(t, http.StatusOK, f.call(t, raw, "list_projects", `{}`).Code)
}

func TestCall_BadRequestBody(t *testing.T) {
	f := newGateway(t, nil)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp/call", bytes.NewBufferString(`{"name":`))
		req.Header.Set("Authorization", "Bearer "+f.token)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing tool name", func(t *testing.T) {
		rec := f.call(t, f.token, "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTools_Discovery(t *testing.T) {
	f := newGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mcp/tools", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	ok, result, _ := decodeEnvelope(t, rec)
	require.True(t, ok)

	tools := result["tools"].([]any)
	require.Len(t, tools, len(toolNames))
	first := tools[0].(map[string]any)
	assert.Equal(t, "list_projects", first["name"])
	assert.NotEmpty(t, first["description"])
	assert.NotNil(t, first["input_schema"])
}

func TestTools_RequiresAuth(t *testing.T) {
	f := newGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mcp/tools", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
