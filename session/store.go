package session

import (
	"errors"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/trim"
)

// ClearAll is the key that makes Clear drop every conversation.
const ClearAll = "all"

// DefaultKey is used when neither a key nor a current conversation is known.
const DefaultKey = "default"

// ErrConversationNotFound is returned for operations on unknown keys.
var ErrConversationNotFound = errors.New("conversation not found")

// Options configures a Store.
type Options struct {
	// SystemPrompt is prepended to every prompt. It may use text/template
	// markers; .agent and .conversation are available.
	SystemPrompt string
	// Agent is the owning agent address, exposed to the system prompt.
	Agent string
	// Strategy selects the history subset sent to the model. Defaults to trim.None.
	Strategy trim.Strategy
	Logger   logging.Logger
}

// Store is a concurrency safe context store keyed by conversation.
type Store struct {
	mu        sync.RWMutex
	histories map[string][]core.Entry
	order     []string
	current   string

	systemPrompt string
	agent        string
	strategy     trim.Strategy
	logger       logging.Logger
}

// NewStore creates an empty store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Strategy == nil {
		opts.Strategy = trim.None{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Store{
		histories:    make(map[string][]core.Entry),
		systemPrompt: opts.SystemPrompt,
		agent:        opts.Agent,
		strategy:     opts.Strategy,
		logger:       opts.Logger,
	}
}

// Strategy returns the trimming strategy in use.
func (s *Store) Strategy() trim.Strategy { return s.strategy }

// resolveLocked maps an empty key to the current conversation.
func (s *Store) resolveLocked(key string) string {
	if key != "" {
		return key
	}
	if s.current != "" {
		return s.current
	}
	return DefaultKey
}

// AddMessage appends entry to the conversation and makes it current. An
// empty key targets the current conversation.
func (s *Store) AddMessage(key string, entry core.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = s.resolveLocked(key)
	if _, ok := s.histories[key]; !ok {
		s.order = append(s.order, key)
	}
	s.histories[key] = append(s.histories[key], copyEntry(entry))
	s.current = key
}

// AddToolResult appends a tool entry answering callID. It logs a warning and
// leaves the store unchanged when the conversation does not exist.
func (s *Store) AddToolResult(key, toolName, callID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = s.resolveLocked(key)
	if _, ok := s.histories[key]; !ok {
		s.logger.Warn("session.tool_result.orphan", "conversation", key, "tool", toolName, "call_id", callID)
		return ErrConversationNotFound
	}
	s.histories[key] = append(s.histories[key], core.ToolResultEntry(toolName, callID, result))
	return nil
}

// History returns a copy of the raw, untrimmed log of a conversation.
func (s *Store) History(key string) []core.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.histories[s.resolveLocked(key)]
	out := make([]core.Entry, len(h))
	for i, e := range h {
		out[i] = copyEntry(e)
	}
	return out
}

// Prompt returns the system prompt followed by the trimmed history with
// sender/receiver/thread metadata removed. Tool call fields are kept.
func (s *Store) Prompt(key string) []core.Entry {
	s.mu.RLock()
	key = s.resolveLocked(key)
	history := s.histories[key]
	trimmed := s.strategy.Apply(history)
	s.mu.RUnlock()

	prompt := make([]core.Entry, 0, len(trimmed)+1)
	if sys := s.renderSystemPrompt(key); sys != "" {
		prompt = append(prompt, core.SystemEntry(sys))
	}
	for _, e := range trimmed {
		prompt = append(prompt, e.Stripped())
	}
	return prompt
}

func (s *Store) renderSystemPrompt(key string) string {
	if s.systemPrompt == "" {
		return ""
	}
	out, err := util.RenderTemplate(s.systemPrompt, map[string]any{
		"agent":        s.agent,
		"conversation": key,
	})
	if err != nil {
		s.logger.Warn("session.system_prompt.render_failed", "error", err)
		return s.systemPrompt
	}
	return out
}

// Clear drops one conversation, or every conversation when key is ClearAll.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == ClearAll {
		s.histories = make(map[string][]core.Entry)
		s.order = nil
		s.current = ""
		return
	}
	key = s.resolveLocked(key)
	if _, ok := s.histories[key]; !ok {
		return
	}
	delete(s.histories, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == key {
		s.current = ""
	}
}

// ActiveKeys returns conversation keys in creation order.
func (s *Store) ActiveKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// SetCurrent selects the conversation used by calls with an empty key. It
// reports false when the conversation does not exist.
func (s *Store) SetCurrent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[key]; !ok {
		return false
	}
	s.current = key
	return true
}

// Current returns the current conversation key, or "" when none is set.
func (s *Store) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Len returns the number of entries logged for a conversation.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories[s.resolveLocked(key)])
}

// Stats reports the trimming effect on a conversation using its actual history.
func (s *Store) Stats(key string) trim.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.histories[s.resolveLocked(key)]
	st := s.strategy.Stats(len(history))
	in := len(s.strategy.Apply(history))
	st.MessagesInContext = in
	st.MessagesDropped = len(history) - in
	st.ToolPairs = len(trim.FindToolPairs(history))
	return st
}

func copyEntry(e core.Entry) core.Entry {
	if len(e.ToolCalls) > 0 {
		e.ToolCalls = append([]core.ToolCall(nil), e.ToolCalls...)
	}
	return e
}
