package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// ErrDuplicateTool is returned when registering a name twice.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry holds the tools exposed to a model. Registration order is kept so
// the tool definitions sent to the provider are deterministic.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry pre-populated with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools. Names must be unique.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions renders the registered tools as model tool definitions.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params := t.Parameters()
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}

// Execute runs one model-issued call and renders its result as text. An
// unknown name, undecodable arguments, a tool error or a panic all come back
// as *ToolError so the caller can record them as a tool result.
func (r *Registry) Execute(toolCtx *core.ToolContext, call core.ToolCall) (result string, err error) {
	t, ok := r.Get(call.Name)
	if !ok {
		return "", NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), CodeNotFound)
	}

	args, err := call.ArgumentMap()
	if err != nil {
		return "", &ToolError{Tool: call.Name, Message: err.Error(), Code: CodeValidation}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			toolCtx.Logger().Error("tool.call.panic", "tool", call.Name, "fc_id", call.ID,
				"panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			result = ""
			err = &ToolError{Tool: call.Name, Message: fmt.Sprintf("panic: %v", p), Code: CodePanic}
		}
	}()

	out, err := t.Call(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return "", toolErr
		}
		return "", &ToolError{Tool: call.Name, Message: err.Error(), Code: CodeExecution}
	}
	toolCtx.Logger().Debug("tool.call.done", "tool", call.Name, "fc_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds())
	return FormatResult(out)
}

// FormatResult renders a tool's return value: strings verbatim, nil as an
// empty string, everything else as JSON.
func FormatResult(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(b), nil
}

// ErrorResult renders an error as the content of a tool result entry.
func ErrorResult(err error) string {
	return "Error: " + err.Error()
}
