package core

import (
	"context"

	"github.com/hupe1980/agentrelay/logging"
)

// ToolContext provides the scoped execution surface handed to a tool for one
// call: the turn's cancellation context, correlation identifiers and the
// inbound message that started the turn.
type ToolContext struct {
	ctx             context.Context
	agent           string
	conversationKey string
	functionCallID  string
	origin          Message
	logger          logging.Logger
}

// NewToolContext constructs a tool context for call id within a conversation.
func NewToolContext(ctx context.Context, agent, conversationKey, functionCallID string, origin Message, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:             ctx,
		agent:           agent,
		conversationKey: conversationKey,
		functionCallID:  functionCallID,
		origin:          origin,
		logger:          logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Agent returns the address of the agent executing the tool.
func (tc *ToolContext) Agent() string { return tc.agent }

// ConversationKey returns the conversation the call belongs to.
func (tc *ToolContext) ConversationKey() string { return tc.conversationKey }

// FunctionCallID returns the tool call id issued by the model.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Origin returns the inbound message that started the turn.
func (tc *ToolContext) Origin() Message { return tc.origin }

// Logger returns the turn's logger. It is never nil.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }
