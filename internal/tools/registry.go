package tools

import (
	"context"
	"encoding/json"

	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

// Tool is one model-invocable function: a JSON schema the provider
// advertises to the model plus a server-side executor.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Run         func(ctx context.Context, input json.RawMessage) (any, error)
}

type Registry struct {
	log   *logger.Logger
	tools map[string]Tool
}

func NewRegistry(log *logger.Logger) *Registry {
	r := &Registry{
		log:   log.With("component", "ToolRegistry"),
		tools: map[string]Tool{},
	}
	r.register(newSerperTool(log))
	r.register(newDeepSearchTool())
	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name] = t
}

// Resolve intersects the requested names with the registry. Unknown
// names are dropped, not errored, so stale clients keep working.
func (r *Registry) Resolve(names []string) []Tool {
	out := make([]Tool, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			r.log.Debug("dropping unknown tool", "name", name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, t)
	}
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}
