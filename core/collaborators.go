package core

import (
	"context"
	"time"
)

// Messenger is the messaging substrate an agent uses to exchange Messages.
// Delivery, addressing and connection lifecycle belong to the implementation.
type Messenger interface {
	// Send delivers m to m.To.
	Send(ctx context.Context, m Message) error

	// Receive waits up to timeout for the next inbound message. It returns
	// (nil, nil) when the timeout elapses without a message.
	Receive(ctx context.Context, timeout time.Duration) (*Message, error)
}

// MemoryProvider supplies long-term knowledge for a conversation. A summary
// is injected once per conversation as a system note.
type MemoryProvider interface {
	// ContextSummary returns a summary for the key or "" when nothing is known.
	ContextSummary(ctx context.Context, conversationKey string) (string, error)
}

// MemoryWriter persists facts that later feed ContextSummary.
type MemoryWriter interface {
	Remember(ctx context.Context, conversationKey, fact string) error
	Recall(ctx context.Context, conversationKey, query string, limit int) ([]string, error)
}
