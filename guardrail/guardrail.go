// Package guardrail filters message content before it reaches the model and
// before a reply leaves the agent.
//
// A Guardrail inspects content and returns a Decision: allow, warn, modify
// (rewrite the content) or block (abort the turn with a canned reply). A
// Chain runs guardrails in order, feeding each one the output of the last,
// and reports every non-allow decision through an optional callback.
package guardrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// ErrBlocked marks content rejected by a guardrail.
var ErrBlocked = errors.New("content blocked by guardrail")

// Action is the outcome of one guardrail check.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionWarn   Action = "warn"
	ActionModify Action = "modify"
	ActionBlock  Action = "block"
)

// Stage tells where a chain runs.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// DefaultBlockedReply is sent when a blocking guardrail provides no reply.
const DefaultBlockedReply = "I can't help with that request."

// Decision is the verdict of a guardrail.
type Decision struct {
	Action    Action `json:"action"`
	Guardrail string `json:"guardrail"`
	// Content is the rewritten content for ActionModify.
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// Reply is the canned reply for ActionBlock.
	Reply string `json:"reply,omitempty"`
}

// Allow is the pass-through decision.
func Allow() Decision { return Decision{Action: ActionAllow} }

// Guardrail checks one piece of content. msg is the inbound message of the
// turn and gives access to sender, recipient and thread.
type Guardrail interface {
	Name() string
	Apply(ctx context.Context, content string, msg core.Message) (Decision, error)
}

// Func adapts a function into a Guardrail.
type Func struct {
	name string
	fn   func(ctx context.Context, content string, msg core.Message) (Decision, error)
}

// NewFunc creates a Guardrail from fn.
func NewFunc(name string, fn func(ctx context.Context, content string, msg core.Message) (Decision, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Guardrail.
func (f *Func) Name() string { return f.name }

// Apply implements Guardrail.
func (f *Func) Apply(ctx context.Context, content string, msg core.Message) (Decision, error) {
	return f.fn(ctx, content, msg)
}

// Result is the outcome of running a chain.
type Result struct {
	Content   string
	Blocked   bool
	Reply     string
	Decisions []Decision
}

// ChainOptions configures a Chain.
type ChainOptions struct {
	// OnDecision is invoked for every warn, modify and block decision.
	OnDecision func(stage Stage, msg core.Message, d Decision)
	// BlockedReply replaces DefaultBlockedReply.
	BlockedReply string
	Logger       logging.Logger
}

// Chain runs guardrails in order.
type Chain struct {
	guards []Guardrail
	opts   ChainOptions
}

// NewChain creates a chain. A nil or empty chain allows everything.
func NewChain(guards []Guardrail, optFns ...func(o *ChainOptions)) *Chain {
	opts := ChainOptions{BlockedReply: DefaultBlockedReply}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Chain{guards: guards, opts: opts}
}

// Len returns the number of guardrails.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.guards)
}

// Run applies every guardrail to content. The first block stops the chain. A
// guardrail that fails is treated as a block so errors never let content through.
func (c *Chain) Run(ctx context.Context, stage Stage, content string, msg core.Message) Result {
	res := Result{Content: content}
	if c == nil {
		return res
	}
	for _, g := range c.guards {
		d, err := g.Apply(ctx, res.Content, msg)
		if err != nil {
			c.opts.Logger.Error("guardrail.error", "guardrail", g.Name(), "stage", string(stage), "error", err)
			d = Decision{Action: ActionBlock, Reason: fmt.Sprintf("guardrail failed: %v", err)}
		}
		if d.Guardrail == "" {
			d.Guardrail = g.Name()
		}
		if d.Action == "" {
			d.Action = ActionAllow
		}
		if d.Action == ActionAllow {
			continue
		}

		res.Decisions = append(res.Decisions, d)
		c.opts.Logger.Info("guardrail.decision", "guardrail", d.Guardrail, "stage", string(stage),
			"action", string(d.Action), "reason", d.Reason)
		if c.opts.OnDecision != nil {
			c.opts.OnDecision(stage, msg, d)
		}

		switch d.Action {
		case ActionModify:
			res.Content = d.Content
		case ActionBlock:
			res.Blocked = true
			res.Reply = d.Reply
			if res.Reply == "" {
				res.Reply = c.opts.BlockedReply
			}
			return res
		}
	}
	return res
}

// Err returns ErrBlocked wrapped with the blocking guardrail, or nil.
func (r Result) Err() error {
	if !r.Blocked {
		return nil
	}
	last := r.Decisions[len(r.Decisions)-1]
	return fmt.Errorf("%w: %s: %s", ErrBlocked, last.Guardrail, last.Reason)
}
