// Package tools defines the tool registry the dispatcher routes tool calls
// through, and the fitness data tools themselves. Handlers receive an
// already-authenticated call with a fresh provider access token; they never
// touch session tokens or refresh logic.
package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fitgate/fitgate/internal/provider"
)

// Call is one authenticated tool invocation.
type Call struct {
	TenantID    uuid.UUID
	Provider    provider.Provider
	AccessToken string
	Args        map[string]any
}

// Handler executes a tool and returns its JSON-serializable result.
type Handler func(ctx context.Context, call *Call) (any, error)

// Tool is a registered tool.
type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// Info is the capability advertisement for one tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps tool names to handlers. Registration happens at startup;
// lookups afterwards are read-only, so no locking is needed.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(tool Tool) error {
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q registered twice", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns tool advertisements in registration order.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, Info{Name: name, Description: r.tools[name].Description})
	}
	return infos
}

// intArg extracts an integer argument, tolerating the float64 that
// encoding/json produces for all numbers.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
