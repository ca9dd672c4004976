package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
)

var (
	// ErrDuplicateMessage reports a redelivered message.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrConversationClosed reports a message for a conversation in a terminal state.
	ErrConversationClosed = errors.New("conversation is not active")
	// ErrMaxInteractions reports a conversation that ran out of interactions.
	ErrMaxInteractions = errors.New("maximum interactions reached")
	// ErrProvider wraps model provider failures.
	ErrProvider = errors.New("model provider failed")
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	// OutcomeReplied means the model answered and the reply was dispatched.
	OutcomeReplied Outcome = "replied"
	// OutcomeDuplicate means the message was already processed and was dropped.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the conversation is in a terminal state.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeBlocked means a guardrail replaced the answer with a canned reply.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeMaxInteractions means the interaction cap was exceeded.
	OutcomeMaxInteractions Outcome = "max_interactions"
	// OutcomeFailed means the provider failed or the turn was cancelled.
	OutcomeFailed Outcome = "failed"
)

// TurnResult describes a processed inbound message.
type TurnResult struct {
	ConversationKey string
	Outcome         Outcome
	State           core.ConversationState
	// Reply is the final text recorded for the turn, before routing transforms.
	Reply          string
	Sent           []core.Message
	ToolIterations int
	ToolsUsed      []string
}

// Err maps outcomes that produced no model answer to a sentinel error:
// ErrDuplicateMessage, ErrConversationClosed, guardrail.ErrBlocked or
// ErrMaxInteractions. It returns nil otherwise.
func (r *TurnResult) Err() error {
	switch r.Outcome {
	case OutcomeDuplicate:
		return ErrDuplicateMessage
	case OutcomeIgnored:
		return fmt.Errorf("%w: %s is %s", ErrConversationClosed, r.ConversationKey, r.State)
	case OutcomeBlocked:
		return guardrail.ErrBlocked
	case OutcomeMaxInteractions:
		return ErrMaxInteractions
	}
	return nil
}

// Orchestrator owns the conversation state table and idempotency ledger of one agent.
type Orchestrator struct {
	opts      Options
	messenger core.Messenger
	model     model.Model
	logger    logging.Logger

	turnMu sync.Mutex // one turn at a time

	mu            sync.Mutex
	conversations map[string]*core.Conversation
	processed     map[string]struct{}

	inbox *mailbox
}

// New creates an orchestrator that talks through messenger and reasons with m.
func New(messenger core.Messenger, m model.Model, optFns ...func(o *Options)) (*Orchestrator, error) {
	if messenger == nil {
		return nil, errors.New("orchestrator: messenger is required")
	}
	if m == nil {
		return nil, errors.New("orchestrator: model is required")
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.applyDefaults()

	return &Orchestrator{
		opts:          opts,
		messenger:     messenger,
		model:         m,
		logger:        opts.Logger,
		conversations: make(map[string]*core.Conversation),
		processed:     make(map[string]struct{}),
		inbox:         newMailbox(),
	}, nil
}

// Address returns the agent's own address.
func (o *Orchestrator) Address() string { return o.opts.Address }

// Store returns the context store.
func (o *Orchestrator) Store() *session.Store { return o.opts.Store }

// Tools returns the tool registry.
func (o *Orchestrator) Tools() *tool.Registry { return o.opts.Tools }

// Messenger returns the messaging substrate.
func (o *Orchestrator) Messenger() core.Messenger { return o.messenger }

// HandleMessage runs one full turn for msg. Provider failures are returned
// wrapped in ErrProvider after the conversation moved to ERROR and the
// sender was notified; every other outcome is reported through the result.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg core.Message) (*TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	start := o.opts.Clock()
	key := o.opts.KeyFunc(msg)
	res := &TurnResult{ConversationKey: key}

	if !o.markProcessed(msg) {
		o.logger.Debug("orchestrator.message.duplicate", "id", msg.ID, "conversation", key)
		res.Outcome = OutcomeDuplicate
		res.State = o.stateOf(key)
		return res, nil
	}

	conv, count, ok := o.beginTurn(key, start)
	if !ok {
		res.Outcome = OutcomeIgnored
		res.State = o.stateOf(key)
		o.logger.Info("orchestrator.message.ignored", "conversation", key, "state", string(res.State), "sender", msg.Sender)
		return res, nil
	}

	if o.opts.MaxInteractions > 0 && count > o.opts.MaxInteractions {
		o.transition(key, core.StateMaxInteractions)
		o.logger.Warn("orchestrator.conversation.max_interactions", "conversation", key, "count", count)
		res.Outcome = OutcomeMaxInteractions
		res.State = core.StateMaxInteractions
		res.Sent = o.notify(ctx, msg, key, o.opts.MaxInteractionsNotice)
		return res, nil
	}

	in := o.opts.InputGuardrails.Run(ctx, guardrail.StageInput, msg.Body, msg)
	if in.Blocked {
		o.logger.Info("orchestrator.input.blocked", "conversation", key, "error", in.Err())
		res.Outcome = OutcomeBlocked
		res.State = o.stateOf(key)
		res.Sent = o.notify(ctx, msg, key, in.Reply)
		return res, nil
	}

	entry := core.FromMessage(msg)
	entry.Content = in.Content
	o.opts.Store.AddMessage(key, entry)
	o.injectMemory(ctx, key, conv)

	final, err := o.resolveTools(ctx, msg, key, res)
	if err != nil && ctx.Err() != nil {
		// Shutdown is not a provider failure; the conversation stays ACTIVE.
		res.Outcome = OutcomeFailed
		res.State = o.stateOf(key)
		return res, ctx.Err()
	}
	if err != nil {
		o.transition(key, core.StateError)
		o.logger.Error("orchestrator.turn.provider_failed", "conversation", key, "error", err)
		res.Outcome = OutcomeFailed
		res.State = core.StateError
		res.Sent = o.notify(ctx, msg, key, o.opts.ErrorNotice)
		o.logTurn(key, res, start)
		return res, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	out := o.opts.OutputGuardrails.Run(ctx, guardrail.StageOutput, final, msg)
	if out.Blocked {
		o.logger.Info("orchestrator.output.blocked", "conversation", key, "error", out.Err())
		res.Outcome = OutcomeBlocked
		res.State = o.stateOf(key)
		res.Sent = o.notify(ctx, msg, key, out.Reply)
		o.logTurn(key, res, start)
		return res, nil
	}
	final = out.Content

	reply := core.AssistantEntry(final)
	reply.Sender, reply.Receiver, reply.Thread = o.opts.Address, msg.Sender, key
	o.opts.Store.AddMessage(key, reply)
	if ContainsMarker(final, o.opts.TerminationMarkers) {
		o.transition(key, core.StateCompleted)
		o.logger.Info("orchestrator.conversation.completed", "conversation", key)
	}

	res.Reply = final
	res.State = o.stateOf(key)
	res.Outcome = OutcomeReplied
	res.Sent = o.dispatch(ctx, msg, key, final, res)
	o.logTurn(key, res, start)
	return res, nil
}

// resolveTools runs the bounded tool loop and returns the final text.
func (o *Orchestrator) resolveTools(ctx context.Context, msg core.Message, key string, res *TurnResult) (string, error) {
	defs := o.opts.Tools.Definitions()
	limiter := core.NewIterationLimiter(o.opts.MaxToolIterations)

	for limiter.Increment() == nil {
		resp, err := o.generate(ctx, model.Request{Messages: o.opts.Store.Prompt(key), Tools: defs})
		if err != nil {
			return "", err
		}
		if !resp.HasToolCalls() {
			return resp.Text, nil
		}

		res.ToolIterations++
		calls := make([]core.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				tc.ID = core.NewID()
			}
			calls[i] = tc
		}
		o.opts.Store.AddMessage(key, core.ToolCallEntry(resp.Text, calls...))

		for _, call := range calls {
			res.ToolsUsed = append(res.ToolsUsed, call.Name)
			content := o.executeTool(ctx, msg, key, call)
			if err := o.opts.Store.AddToolResult(key, call.Name, call.ID, content); err != nil {
				o.logger.Warn("orchestrator.tool.result_dropped", "conversation", key, "tool", call.Name, "error", err)
			}
		}
	}

	o.logger.Warn("orchestrator.tool_loop.exhausted", "conversation", key, "iterations", limiter.Count()-1)
	resp, err := o.generate(ctx, model.Request{Messages: o.opts.Store.Prompt(key)})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, msg core.Message, key string, call core.ToolCall) string {
	start := time.Now()
	tc := core.NewToolContext(ctx, o.opts.Address, key, call.ID, msg, o.logger)
	out, err := o.opts.Tools.Execute(tc, call)
	if rl, ok := o.logger.(turnLogger); ok {
		rl.LogToolCall(call.Name, call.ID, time.Since(start), err)
	}
	if err != nil {
		return tool.ErrorResult(err)
	}
	return out
}

func (o *Orchestrator) generate(ctx context.Context, req model.Request) (*model.Response, error) {
	start := time.Now()
	resp, err := o.model.Generate(ctx, req)
	if rl, ok := o.logger.(turnLogger); ok {
		tokens := 0
		if resp != nil && resp.Usage != nil {
			tokens = resp.Usage.TotalTokens
		}
		rl.LogModelCall(o.model.Info().Name, tokens, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("model returned no response")
	}
	return resp, nil
}

// dispatch sends text to every routed recipient. Failures are logged per
// recipient and do not stop the remaining sends.
func (o *Orchestrator) dispatch(ctx context.Context, msg core.Message, key, text string, res *TurnResult) []core.Message {
	tc := routing.TurnContext{
		Agent:           o.opts.Address,
		ConversationKey: key,
		State:           res.State,
		Interactions:    o.interactionsOf(key),
		ToolsUsed:       res.ToolsUsed,
	}
	route, err := o.opts.Resolver.Resolve(ctx, msg, text, tc)
	if err != nil {
		o.logger.Error("orchestrator.routing.failed", "conversation", key, "error", err)
		route = routing.To(msg.Sender)
	}

	var sent []core.Message
	for _, target := range route.Targets() {
		out := core.NewMessage(o.opts.Address, target.Recipient, key, target.Transform(text))
		for k, v := range target.Metadata {
			out = out.WithMetadata(k, v)
		}
		if err := o.messenger.Send(ctx, out); err != nil {
			o.logger.Error("orchestrator.dispatch.failed", "conversation", key, "recipient", target.Recipient, "error", err)
			continue
		}
		sent = append(sent, out)
	}
	return sent
}

// notify replies to the sender of msg outside the routing resolver.
func (o *Orchestrator) notify(ctx context.Context, msg core.Message, key, text string) []core.Message {
	if msg.Sender == "" || text == "" {
		return nil
	}
	out := core.NewMessage(o.opts.Address, msg.Sender, key, text)
	if err := o.messenger.Send(ctx, out); err != nil {
		o.logger.Error("orchestrator.dispatch.failed", "conversation", key, "recipient", msg.Sender, "error", err)
		return nil
	}
	return []core.Message{out}
}

func (o *Orchestrator) injectMemory(ctx context.Context, key string, conv *core.Conversation) {
	if o.opts.Memory == nil {
		return
	}
	o.mu.Lock()
	injected := conv.MemoryInjected
	conv.MemoryInjected = true
	o.mu.Unlock()
	if injected {
		return
	}
	summary, err := o.opts.Memory.ContextSummary(ctx, key)
	if err != nil {
		o.logger.Warn("orchestrator.memory.summary_failed", "conversation", key, "error", err)
		return
	}
	if summary != "" {
		o.opts.Store.AddMessage(key, core.SystemEntry(summary))
	}
}

func (o *Orchestrator) logTurn(key string, res *TurnResult, start time.Time) {
	if rl, ok := o.logger.(turnLogger); ok {
		rl.LogTurn(key, res.ToolIterations, o.opts.Clock().Sub(start), string(res.State))
		return
	}
	o.logger.Info("orchestrator.turn.completed", "conversation", key, "outcome", string(res.Outcome),
		"iterations", res.ToolIterations, "state", string(res.State))
}

// turnLogger is implemented by logging.RelayLogger.
type turnLogger interface {
	LogToolCall(tool, callID string, dur time.Duration, err error)
	LogModelCall(model string, tokens int, dur time.Duration, err error)
	LogTurn(conversation string, iterations int, dur time.Duration, state string)
}

// ContainsMarker reports whether text contains any non-empty marker.
func ContainsMarker(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// StripMarkers removes every marker from text and trims the result.
func StripMarkers(text string, markers []string) string {
	for _, m := range markers {
		if m != "" {
			text = strings.ReplaceAll(text, m, "")
		}
	}
	return strings.TrimSpace(text)
}

// --- conversation state table ---

func (o *Orchestrator) markProcessed(msg core.Message) bool {
	id := core.Fingerprint(msg)
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, seen := o.processed[id]; seen {
		return false
	}
	o.processed[id] = struct{}{}
	return true
}

// beginTurn resolves the conversation and bumps its interaction counter. It
// reports false for conversations in a terminal state.
func (o *Orchestrator) beginTurn(key string, now time.Time) (*core.Conversation, int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.conversations[key]
	if !ok {
		conv = core.NewConversation(key, now)
		o.conversations[key] = conv
	}
	if conv.State.IsTerminal() {
		return conv, conv.Interactions, false
	}
	return conv, conv.Touch(now), true
}

func (o *Orchestrator) transition(key string, state core.ConversationState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv, ok := o.conversations[key]; ok {
		conv.Transition(state)
	}
}

func (o *Orchestrator) stateOf(key string) core.ConversationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv, ok := o.conversations[key]; ok {
		return conv.State
	}
	return core.StateActive
}

func (o *Orchestrator) interactionsOf(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv, ok := o.conversations[key]; ok {
		return conv.Interactions
	}
	return 0
}

// Conversation returns a snapshot of the conversation row for key.
func (o *Orchestrator) Conversation(key string) (core.Conversation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.conversations[key]
	if !ok {
		return core.Conversation{}, false
	}
	return conv.Snapshot(), true
}

// Conversations returns snapshots of every known conversation ordered by key.
func (o *Orchestrator) Conversations() []core.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.Conversation, 0, len(o.conversations))
	for _, conv := range o.conversations {
		out = append(out, conv.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResetConversation returns a conversation to ACTIVE with a zero interaction
// count. History is kept; clear it through the store when needed. It reports
// false for unknown keys.
func (o *Orchestrator) ResetConversation(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.conversations[key]
	if !ok {
		return false
	}
	conv.Reset(o.opts.Clock())
	return true
}

// SweepIdle moves ACTIVE conversations idle for longer than the configured
// IdleTimeout to TIMEOUT and returns their keys.
func (o *Orchestrator) SweepIdle(now time.Time) []string {
	if o.opts.IdleTimeout <= 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var timedOut []string
	for key, conv := range o.conversations {
		if conv.State == core.StateActive && now.Sub(conv.LastActivity) > o.opts.IdleTimeout {
			conv.Transition(core.StateTimeout)
			timedOut = append(timedOut, key)
		}
	}
	sort.Strings(timedOut)
	for _, key := range timedOut {
		o.logger.Info("orchestrator.conversation.timeout", "conversation", key)
	}
	return timedOut
}
