package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	assert.ElementsMatch(t, []string{"a"}, schema["required"])
}

func newToolContext(callID string) *core.ToolContext {
	origin := core.NewMessage("alice@x", "bot@x", "t1", "hi")
	return core.NewToolContext(context.Background(), "bot@x", "t1", callID, origin, logging.NoOpLogger{})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	result, err := sumTool.Call(newToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []string{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	_, err := tTool.Call(newToolContext("fc2"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(newToolContext("fc3"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
}

// -------------------- Registry Tests --------------------

func echoTool(name string) *FunctionTool {
	return NewFunctionTool(name, "Echo", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func TestRegistry_RegisterAndDefinitions(t *testing.T) {
	r, err := NewRegistry(echoTool("b"), echoTool("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "b", defs[0].Function.Name)

	err = r.Register(echoTool("a"))
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r, _ := NewRegistry()
	_, err := r.Execute(newToolContext("c1"), core.ToolCall{ID: "c1", Name: "search"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
	assert.Contains(t, ErrorResult(err), "search not found")
}

func TestRegistry_ExecuteRendersResults(t *testing.T) {
	structTool := NewFunctionTool("info", "Info", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	r, _ := NewRegistry(echoTool("echo"), structTool)

	out, err := r.Execute(newToolContext("c1"), core.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	out, err = r.Execute(newToolContext("c2"), core.ToolCall{ID: "c2", Name: "info"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, out)

	_, err = r.Execute(newToolContext("c3"), core.ToolCall{ID: "c3", Name: "echo", Arguments: `{bad`})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestRegistry_ExecuteRecoversPanics(t *testing.T) {
	boom := NewFunctionTool("boom", "Panics", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		panic("kaboom")
	})
	r, _ := NewRegistry(boom)
	_, err := r.Execute(newToolContext("c1"), core.ToolCall{ID: "c1", Name: "boom"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodePanic, toolErr.Code)
	assert.True(t, strings.Contains(toolErr.Message, "kaboom"))
}

// -------------------- Memory Tools --------------------

type fakeMemory struct {
	mu    sync.Mutex
	facts map[string][]string
}

func (f *fakeMemory) Remember(_ context.Context, key, fact string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.facts == nil {
		f.facts = map[string][]string{}
	}
	f.facts[key] = append(f.facts[key], fact)
	return nil
}

func (f *fakeMemory) Recall(_ context.Context, key, query string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fact := range f.facts[key] {
		if strings.Contains(fact, query) && len(out) < limit {
			out = append(out, fact)
		}
	}
	return out, nil
}

func TestMemoryTools(t *testing.T) {
	mem := &fakeMemory{}
	r, err := NewRegistry(NewRememberTool(mem), NewRecallTool(mem))
	require.NoError(t, err)

	_, err = r.Execute(newToolContext("c1"), core.ToolCall{ID: "c1", Name: "remember", Arguments: `{"fact":"user likes go"}`})
	require.NoError(t, err)
	assert.Equal(t, []string{"user likes go"}, mem.facts["t1"])

	out, err := r.Execute(newToolContext("c2"), core.ToolCall{ID: "c2", Name: "recall", Arguments: `{"query":"go"}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"facts":["user likes go"]}`, out)

	_, err = r.Execute(newToolContext("c3"), core.ToolCall{ID: "c3", Name: "remember", Arguments: `{}`})
	assert.Error(t, err)
}

type debugLog struct {
	logging.NoOpLogger
	mu     sync.Mutex
	events []string
}

func (l *debugLog) Debug(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msg)
}

func TestMemoryTools_SchemaAndLogging(t *testing.T) {
	remember := NewRememberTool(&fakeMemory{})
	assert.ElementsMatch(t, []string{"fact"}, remember.Parameters()["required"])

	recall := NewRecallTool(&fakeMemory{})
	assert.NotContains(t, recall.Parameters(), "required")
	props := recall.Parameters()["properties"].(map[string]any)
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])

	log := &debugLog{}
	tc := core.NewToolContext(context.Background(), "bot@x", "t1", "c1", core.Message{}, log)
	_, err := remember.Call(tc, map[string]any{"fact": "likes tea"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tool.remember.stored"}, log.events)
}

func TestNewToolContext_NilLogger(t *testing.T) {
	tc := core.NewToolContext(context.Background(), "bot@x", "t1", "c1", core.Message{}, nil)
	assert.NotNil(t, tc.Logger())
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
