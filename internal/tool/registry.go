package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/llm"
)

// Registry is the process-wide tool catalog. It is populated once at
// startup, before the first request, and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string // registration order, for stable listings and schemas
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registering a name twice is a configuration error
// and fails fast rather than silently overwriting.
func (r *Registry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ForRole returns the tools whose allow-list contains role, in
// registration order.
func (r *Registry) ForRole(role string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Tool
	for _, name := range r.order {
		t := r.tools[name]
		for _, allowed := range t.desc.AllowedRoles {
			if allowed == role {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Schemas returns the model-facing function schema for every tool visible
// to role. This is the exact shape handed to the model each turn.
func (r *Registry) Schemas(role string) []llm.Tool {
	tools := r.ForRole(role)
	out := make([]llm.Tool, len(tools))
	for i, t := range tools {
		out[i] = llm.Tool{
			Name:        t.desc.Name,
			Description: t.desc.Description,
			Parameters:  t.desc.Parameters,
		}
	}
	return out
}

// Dispatch looks up a tool by name and invokes it. The model is free to
// hallucinate a name, so an unknown one returns a failure envelope rather
// than an error.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, ec *execctx.Context) Result {
	t, ok := r.Get(name)
	if !ok {
		return failure(fmt.Sprintf("Tool '%s' not found", name))
	}
	return t.Invoke(ctx, args, ec)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
