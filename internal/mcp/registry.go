// ABOUTME: Closed tool registry with per-tool compiled JSON Schemas.
// ABOUTME: Dispatch validates arguments against the schema before the handler runs.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/todoforai/todod/internal/apperr"
	"github.com/todoforai/todod/internal/store"
)

// Args holds decoded tool arguments. Numbers are json.Number so the schema
// can tell integers from floats and strings.
type Args map[string]any

// String returns the string argument for key, or "" if absent.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Has reports whether key was supplied at all.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Int returns the integer argument for key. The schema guarantees the type
// when the key is declared as integer, so a false second return means the
// key was absent.
func (a Args) Int(key string) (int64, bool) {
	n, ok := a[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Strings returns the string-array argument for key, or nil if absent.
func (a Args) Strings(key string) []string {
	items, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// HandlerFunc executes one tool call for an authenticated user. Arguments
// have already passed schema validation.
type HandlerFunc func(ctx context.Context, user *store.User, args Args) (any, error)

// Tool is one dispatchable tool: its public contract plus the handler.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string

	schema  *jsonschema.Schema
	handler HandlerFunc
}

// toolNames is the complete tool surface. NewRegistry fails if any entry
// lacks a registered definition, so a missing handler is caught at startup
// rather than on first call.
var toolNames = []string{
	"list_projects",
	"get_project_info",
	"get_project_tasks_by_name",
	"get_task_by_id",
	"create_task",
	"update_task",
	"submit_task_feedback",
}

// Registry is the closed set of tools the gateway dispatches to.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry compiles every tool schema and verifies the registry covers
// the full tool surface.
func NewRegistry(defs []*Tool) (*Registry, error) {
	tools := make(map[string]*Tool, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := tools[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		if def.handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", def.Name)
		}
		schema, err := compileSchema(def.Name, def.SchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", def.Name, err)
		}
		def.schema = schema
		tools[def.Name] = def
	}

	for _, name := range toolNames {
		if _, ok := tools[name]; !ok {
			return nil, fmt.Errorf("tool %q not registered", name)
		}
	}
	if len(tools) != len(toolNames) {
		return nil, fmt.Errorf("registry has %d tools, want %d", len(tools), len(toolNames))
	}

	return &Registry{tools: tools}, nil
}

func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	// jsonschema.UnmarshalJSON keeps numbers as json.Number, which the
	// validator requires.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// List returns the tools in their declared order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, name := range toolNames {
		out = append(out, r.tools[name])
	}
	return out
}

// Dispatch validates rawArgs against the named tool's schema and runs its
// handler. Unknown tools and schema violations never reach a handler.
func (r *Registry) Dispatch(ctx context.Context, user *store.User, name string, rawArgs json.RawMessage) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, apperr.NotFound("unknown tool %q", name)
	}

	if len(rawArgs) == 0 || string(rawArgs) == "null" {
		rawArgs = json.RawMessage("{}")
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(rawArgs)))
	if err != nil {
		return nil, apperr.InvalidArgument("arguments are not valid JSON")
	}
	if err := tool.schema.Validate(parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid arguments for %s", name)
	}

	m, ok := parsed.(map[string]any)
	if !ok {
		return nil, apperr.InvalidArgument("arguments must be a JSON object")
	}

	return tool.handler(ctx, user, Args(m))
}
