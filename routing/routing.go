// Package routing decides who receives an agent's reply.
//
// A Resolver looks at the inbound message, the final reply text and a small
// TurnContext and returns a Route: one or more recipients, an optional text
// transform and optional metadata. The orchestrator normalizes a Route into
// one Target per recipient before dispatch.
package routing

import (
	"context"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// TurnContext is the read-only turn summary handed to resolvers.
type TurnContext struct {
	Agent           string                 `json:"agent"`
	ConversationKey string                 `json:"conversation_key"`
	State           core.ConversationState `json:"state"`
	Interactions    int                    `json:"interactions"`
	ToolsUsed       []string               `json:"tools_used,omitempty"`
}

// Transform rewrites the reply text for a recipient.
type Transform func(text string) string

// Identity returns text unchanged.
func Identity(text string) string { return text }

// Route is a resolver's answer.
type Route struct {
	Recipients []string
	Transform  Transform
	Metadata   map[string]string
}

// To routes to recipients without transform or metadata.
func To(recipients ...string) Route { return Route{Recipients: recipients} }

// Target is one normalized dispatch instruction.
type Target struct {
	Recipient string
	Transform Transform
	Metadata  map[string]string
}

// Targets normalizes the route: empty recipients are skipped, duplicates
// collapse and Transform defaults to Identity.
func (r Route) Targets() []Target {
	transform := r.Transform
	if transform == nil {
		transform = Identity
	}
	seen := make(map[string]struct{}, len(r.Recipients))
	out := make([]Target, 0, len(r.Recipients))
	for _, rcpt := range r.Recipients {
		rcpt = strings.TrimSpace(rcpt)
		if rcpt == "" {
			continue
		}
		if _, dup := seen[rcpt]; dup {
			continue
		}
		seen[rcpt] = struct{}{}
		out = append(out, Target{Recipient: rcpt, Transform: transform, Metadata: r.Metadata})
	}
	return out
}

// Resolver picks the recipients of a reply.
type Resolver interface {
	Resolve(ctx context.Context, original core.Message, text string, tc TurnContext) (Route, error)
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(ctx context.Context, original core.Message, text string, tc TurnContext) (Route, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, original core.Message, text string, tc TurnContext) (Route, error) {
	return f(ctx, original, text, tc)
}

// Default replies to a fixed address when set, else to the sender.
type Default struct {
	ReplyTo string
}

// Resolve implements Resolver.
func (d Default) Resolve(_ context.Context, original core.Message, _ string, _ TurnContext) (Route, error) {
	if d.ReplyTo != "" {
		return To(d.ReplyTo), nil
	}
	return To(original.Sender), nil
}

// Rule maps a case-insensitive keyword to recipients.
type Rule struct {
	Keyword    string
	Recipients []string
}

// Keyword routes by the first rule whose keyword occurs in the reply text
// and falls back to another resolver when no rule matches.
type Keyword struct {
	Rules    []Rule
	Fallback Resolver
}

// Resolve implements Resolver.
func (k Keyword) Resolve(ctx context.Context, original core.Message, text string, tc TurnContext) (Route, error) {
	lower := strings.ToLower(text)
	for _, r := range k.Rules {
		if r.Keyword != "" && strings.Contains(lower, strings.ToLower(r.Keyword)) {
			return To(r.Recipients...), nil
		}
	}
	fb := k.Fallback
	if fb == nil {
		fb = Default{}
	}
	return fb.Resolve(ctx, original, text, tc)
}
