package testutil

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// HistoryBuilder constructs conversation histories with fluent chaining.
// Example:
//
//	h := NewHistoryBuilder().User("hi").ToolPair("search").Assistant("done").Build()
type HistoryBuilder struct {
	entries []core.Entry
	calls   int
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// User appends a user entry (chainable).
func (b *HistoryBuilder) User(content string) *HistoryBuilder {
	b.entries = append(b.entries, core.UserEntry(content))
	return b
}

// Assistant appends a plain assistant entry (chainable).
func (b *HistoryBuilder) Assistant(content string) *HistoryBuilder {
	b.entries = append(b.entries, core.AssistantEntry(content))
	return b
}

// System appends a system entry (chainable).
func (b *HistoryBuilder) System(content string) *HistoryBuilder {
	b.entries = append(b.entries, core.SystemEntry(content))
	return b
}

// Users appends n numbered user entries (chainable).
func (b *HistoryBuilder) Users(n int) *HistoryBuilder {
	for i := 0; i < n; i++ {
		b.User(fmt.Sprintf("m%d", len(b.entries)))
	}
	return b
}

// ToolPair appends an assistant entry requesting one call per tool name
// followed by the matching tool results (chainable).
func (b *HistoryBuilder) ToolPair(tools ...string) *HistoryBuilder {
	calls := make([]core.ToolCall, len(tools))
	for i, name := range tools {
		b.calls++
		calls[i] = core.ToolCall{ID: fmt.Sprintf("call_%d", b.calls), Name: name, Arguments: "{}"}
	}
	b.entries = append(b.entries, core.ToolCallEntry("", calls...))
	for _, c := range calls {
		b.entries = append(b.entries, core.ToolResultEntry(c.Name, c.ID, "ok"))
	}
	return b
}

// Build returns the accumulated entries.
func (b *HistoryBuilder) Build() []core.Entry {
	return append([]core.Entry(nil), b.entries...)
}
