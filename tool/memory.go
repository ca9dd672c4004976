package tool

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// DefaultRecallLimit caps recall results when the model gives no limit.
const DefaultRecallLimit = 5

type rememberArgs struct {
	Fact string `json:"fact" description:"Fact to remember, one sentence"`
}

type recallArgs struct {
	Query string `json:"query,omitempty" description:"Text to search for; empty returns the latest facts"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of facts"`
}

// NewRememberTool exposes MemoryWriter.Remember to the model. Facts are
// scoped to the calling conversation.
func NewRememberTool(w core.MemoryWriter) *FunctionTool {
	return NewFunctionToolFromStruct(
		"remember",
		"Store a fact about this conversation for later turns.",
		rememberArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			fact, _ := args["fact"].(string)
			if fact == "" {
				return nil, NewToolError("remember", "fact must not be empty", CodeValidation)
			}
			if err := w.Remember(tc.Context(), tc.ConversationKey(), fact); err != nil {
				return nil, fmt.Errorf("remember: %w", err)
			}
			tc.Logger().Debug("tool.remember.stored", "conversation", tc.ConversationKey(), "call_id", tc.FunctionCallID())
			return map[string]any{"stored": true}, nil
		},
	)
}

// NewRecallTool exposes MemoryWriter.Recall to the model.
func NewRecallTool(w core.MemoryWriter) *FunctionTool {
	return NewFunctionToolFromStruct(
		"recall",
		"Look up previously remembered facts about this conversation.",
		recallArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			limit := DefaultRecallLimit
			if l, ok := args["limit"].(float64); ok && l > 0 {
				limit = int(l)
			}
			facts, err := w.Recall(tc.Context(), tc.ConversationKey(), query, limit)
			if err != nil {
				return nil, fmt.Errorf("recall: %w", err)
			}
			tc.Logger().Debug("tool.recall.done", "conversation", tc.ConversationKey(), "facts", len(facts))
			return map[string]any{"facts": facts}, nil
		},
	)
}
