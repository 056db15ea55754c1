package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/producthelper/producthelper/pkg/models"
)

// ToolContext is the per-invocation context handed to tool handlers.
// Every invocation gets a fresh value; handlers must not rely on state
// surviving between calls.
type ToolContext struct {
	ProjectID int64
	RequestID interface{}
	StartTime time.Time
}

// ToolHandler executes one tool call. A returned error (or panic) is
// converted by the dispatcher into a tool execution error response; it
// never escapes unhandled.
type ToolHandler func(ctx context.Context, args map[string]interface{}, tc *ToolContext) (*models.MCPToolResult, error)

// Tool couples a published tool definition with its handler.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     ToolHandler
}

// Registered is a tool admitted to the registry, carrying the compiled
// form of its input schema.
type Registered struct {
	Tool
	compiled *jsonschema.Schema
}

// CheckArgs validates args against the tool's declared input schema.
// Absent arguments are checked as an empty object. Tools registered
// without a schema accept anything.
func (rt *Registered) CheckArgs(args map[string]interface{}) error {
	if rt.compiled == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return validateArgs(rt.compiled, args)
}

// Registry holds the server's tools. Registration happens once at
// startup, before the first request is served; after that the registry
// is read-only and reads take no lock.
type Registry struct {
	order  []string
	byName map[string]*Registered
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Registered)}
}

// Register admits a tool. A duplicate name, a nil handler, or an
// uncompilable input schema is a startup bug and fails loudly so it
// cannot be shadowed at call time.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("register tool %q: nil handler", t.Name)
	}
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("register tool %q: already registered", t.Name)
	}

	rt := &Registered{Tool: t}
	if t.InputSchema != nil {
		compiled, err := compileInputSchema(t.Name, t.InputSchema)
		if err != nil {
			return fmt.Errorf("register tool %q: %w", t.Name, err)
		}
		rt.compiled = compiled
	}

	r.order = append(r.order, t.Name)
	r.byName[t.Name] = rt
	return nil
}

// Get looks up a registered tool by name.
func (r *Registry) Get(name string) (*Registered, bool) {
	rt, ok := r.byName[name]
	return rt, ok
}

// List returns the published definitions in registration order.
func (r *Registry) List() []models.MCPToolInfo {
	infos := make([]models.MCPToolInfo, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name].Tool
		infos = append(infos, models.MCPToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return infos
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	return len(r.order)
}
