package core

import (
	"time"
)

// ConversationState is the lifecycle state of a conversation.
type ConversationState string

const (
	// StateActive accepts new turns.
	StateActive ConversationState = "ACTIVE"
	// StateCompleted is reached when a reply carried a termination marker.
	StateCompleted ConversationState = "COMPLETED"
	// StateError is reached when the model provider failed during a turn.
	StateError ConversationState = "ERROR"
	// StateTimeout is reached when a conversation stayed idle for too long.
	StateTimeout ConversationState = "TIMEOUT"
	// StateMaxInteractions is reached when the interaction budget was exhausted.
	StateMaxInteractions ConversationState = "MAX_INTERACTIONS_REACHED"
)

// IsTerminal reports whether the state is sticky.
func (s ConversationState) IsTerminal() bool {
	return s != StateActive
}

// Conversation tracks the lifecycle of one conversation key. The message log
// itself lives in the context store; this struct only carries the state table row.
type Conversation struct {
	Key          string            `json:"key"`
	State        ConversationState `json:"state"`
	Interactions int               `json:"interactions"`
	StartedAt    time.Time         `json:"started_at"`
	LastActivity time.Time         `json:"last_activity"`

	// MemoryInjected records whether the long-term memory note was added.
	MemoryInjected bool `json:"memory_injected"`
}

// NewConversation creates an ACTIVE conversation started at now.
func NewConversation(key string, now time.Time) *Conversation {
	return &Conversation{Key: key, State: StateActive, StartedAt: now, LastActivity: now}
}

// Touch bumps the interaction counter and last activity timestamp and returns
// the new count.
func (c *Conversation) Touch(now time.Time) int {
	c.Interactions++
	c.LastActivity = now
	return c.Interactions
}

// Transition moves an ACTIVE conversation to state. Terminal states are
// sticky: the call reports false and leaves the state unchanged.
func (c *Conversation) Transition(state ConversationState) bool {
	if c.State.IsTerminal() {
		return false
	}
	c.State = state
	return true
}

// Reset returns the conversation to ACTIVE with a zero interaction count.
func (c *Conversation) Reset(now time.Time) {
	c.State = StateActive
	c.Interactions = 0
	c.LastActivity = now
	c.MemoryInjected = false
}

// Snapshot returns a copy safe to hand to callers.
func (c *Conversation) Snapshot() Conversation {
	return *c
}
