package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author class of an Entry.
type Role string

const (
	// RoleSystem marks instructions and injected notes.
	RoleSystem Role = "system"
	// RoleUser marks inbound messages from other agents or humans.
	RoleUser Role = "user"
	// RoleAssistant marks model output, including tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks the result of one tool call.
	RoleTool Role = "tool"
)

// ToolCall is a model-issued request to invoke a named tool. IDs are unique
// within one assistant entry and pair the call with its tool result entry.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON encoded argument object
}

// ArgumentMap decodes Arguments into a map. Empty arguments yield an empty map.
func (tc ToolCall) ArgumentMap() (map[string]any, error) {
	if tc.Arguments == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Entry is one message in a conversation's context log.
//
// Sender, Receiver and Thread are house-keeping metadata; they are recorded
// for diagnostics and never sent to a model provider.
type Entry struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`

	Sender   string `json:"sender,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Thread   string `json:"thread,omitempty"`
}

// HasToolCalls reports whether the entry is an assistant tool call request.
func (e Entry) HasToolCalls() bool {
	return e.Role == RoleAssistant && len(e.ToolCalls) > 0
}

// Stripped returns a copy without house-keeping metadata. Tool call fields are preserved.
func (e Entry) Stripped() Entry {
	out := e
	out.Sender, out.Receiver, out.Thread = "", "", ""
	if len(e.ToolCalls) > 0 {
		out.ToolCalls = append([]ToolCall(nil), e.ToolCalls...)
	}
	return out
}

// SystemEntry builds a system entry.
func SystemEntry(content string) Entry {
	return Entry{Role: RoleSystem, Content: content}
}

// UserEntry builds a user entry.
func UserEntry(content string) Entry {
	return Entry{Role: RoleUser, Content: content}
}

// AssistantEntry builds a plain assistant entry.
func AssistantEntry(content string) Entry {
	return Entry{Role: RoleAssistant, Content: content}
}

// ToolCallEntry builds an assistant entry carrying tool call requests.
func ToolCallEntry(content string, calls ...ToolCall) Entry {
	return Entry{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultEntry builds the tool entry answering call id.
func ToolResultEntry(toolName, callID, content string) Entry {
	return Entry{Role: RoleTool, Name: toolName, ToolCallID: callID, Content: content}
}

// FromMessage converts an inbound Message into a user entry keeping the
// envelope as house-keeping metadata.
func FromMessage(m Message) Entry {
	return Entry{Role: RoleUser, Content: m.Body, Sender: m.Sender, Receiver: m.To, Thread: m.Thread}
}
