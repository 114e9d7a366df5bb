// Package mcp implements the tool-call gateway for AI clients.
//
// # Overview
//
// AI assistants interact with todod through a small, closed set of named
// tools (list_projects, create_task, ...) instead of the REST API. This
// package provides the HTTP surface for those calls and the dispatch
// machinery behind it.
//
// # Endpoints
//
//   - GET  /api/v1/mcp/tools - tool discovery (names, descriptions, schemas)
//   - POST /api/v1/mcp/call  - tool execution
//
// # Authentication
//
// Callers present a long-lived API token:
//
//	Authorization: Bearer <token>
//
// Tokens are verified by auth.TokenAuthenticator against the store; every
// call runs as the token's owning user and can only touch that user's
// projects and tasks.
//
// # Request pipeline
//
// Each call passes through a fixed gate order: rate limiter, token
// authenticator, dispatcher. The dispatcher validates arguments against the
// tool's compiled JSON Schema before the handler runs, and handlers perform
// ownership checks before any mutation. A gate failure short-circuits the
// request with no side effects.
//
// # Responses
//
// Dispatched calls answer HTTP 200 with an envelope:
//
//	{"ok": true,  "result": ...}
//	{"ok": false, "error": "..."}
//
// Gate failures map to conventional statuses: 401 for credential problems,
// 403 for ownership violations, 404 for unknown tools, 400 for arguments
// that fail schema validation, 429 when the caller is throttled.
package mcp
