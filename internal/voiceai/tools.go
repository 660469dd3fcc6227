package voiceai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type ToolFunc func(ctx context.Context, call FunctionCall) (any, error)

type registeredTool struct {
	spec ToolSpec
	fn   ToolFunc
}

// ToolRegistry is a ToolExecutor backed by named functions.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

func (r *ToolRegistry) Register(spec ToolSpec, fn ToolFunc) {
	r.mu.Lock()
	r.tools[spec.Name] = registeredTool{spec: spec, fn: fn}
	r.mu.Unlock()
}

// Specs returns the declared tools sorted by name.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *ToolRegistry) Execute(ctx context.Context, call FunctionCall) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	res, err := t.fn(ctx, call)
	if err != nil {
		return "", err
	}
	if s, ok := res.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", call.Name, err)
	}
	return string(b), nil
}
