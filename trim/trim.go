// Package trim implements context trimming strategies that select which part
// of a conversation's history enters the model prompt once the history
// exceeds a message budget.
//
// Three strategies are provided:
//
//   - None returns the full history.
//   - FixedWindow keeps the newest N entries. It does not adjust the cut for
//     tool call / tool result pairs, so a window may start with an orphaned
//     tool result.
//   - SmartWindow treats every complete tool call / tool result pair as an
//     atomic unit, can pin the first K entries and can give pairs priority
//     over plain messages.
//
// Budgets count entries, not tokens.
package trim

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// Strategy selects the subset of a history that is sent to the model.
// Implementations must never return more than their budget and must keep the
// relative order of the selected entries.
type Strategy interface {
	// Name returns the strategy identifier used in stats and config.
	Name() string
	// Apply returns the selected entries in their original order.
	Apply(history []core.Entry) []core.Entry
	// Stats reports how a history of total entries would be trimmed.
	Stats(total int) Stats
}

// Stats describes the effect of a strategy on a history.
type Stats struct {
	Strategy          string `json:"strategy"`
	MaxMessages       int    `json:"max_messages"`
	TotalMessages     int    `json:"total_messages"`
	MessagesInContext int    `json:"messages_in_context"`
	MessagesDropped   int    `json:"messages_dropped"`
	PreserveInitial   int    `json:"preserve_initial,omitempty"`
	PrioritizeTools   bool   `json:"prioritize_tools,omitempty"`
	// ToolPairs counts complete tool pairs in the history. Only filled by
	// callers that inspect an actual history.
	ToolPairs int `json:"tool_pairs,omitempty"`
}

// Kind names a strategy in configuration.
type Kind string

const (
	// KindNone selects None.
	KindNone Kind = "none"
	// KindFixed selects FixedWindow.
	KindFixed Kind = "fixed"
	// KindSmart selects SmartWindow.
	KindSmart Kind = "smart"
)

// Options configures New.
type Options struct {
	Kind            Kind
	MaxMessages     int
	PreserveInitial int
	PrioritizeTools bool
}

// New builds the strategy described by opts.
func New(opts Options) (Strategy, error) {
	switch opts.Kind {
	case KindNone, "":
		return None{}, nil
	case KindFixed:
		if opts.MaxMessages < 1 {
			return nil, fmt.Errorf("fixed window requires max_messages >= 1, got %d", opts.MaxMessages)
		}
		return NewFixedWindow(opts.MaxMessages), nil
	case KindSmart:
		if opts.MaxMessages < 1 {
			return nil, fmt.Errorf("smart window requires max_messages >= 1, got %d", opts.MaxMessages)
		}
		if opts.PreserveInitial < 0 {
			return nil, fmt.Errorf("preserve_initial must not be negative, got %d", opts.PreserveInitial)
		}
		return NewSmartWindow(opts.MaxMessages, func(o *SmartOptions) {
			o.PreserveInitial = opts.PreserveInitial
			o.PrioritizeTools = opts.PrioritizeTools
		}), nil
	default:
		return nil, fmt.Errorf("unknown context strategy %q", opts.Kind)
	}
}

// None is the identity strategy.
type None struct{}

// Name implements Strategy.
func (None) Name() string { return string(KindNone) }

// Apply returns a copy of the full history.
func (None) Apply(history []core.Entry) []core.Entry {
	return append([]core.Entry(nil), history...)
}

// Stats implements Strategy.
func (None) Stats(total int) Stats {
	return Stats{Strategy: string(KindNone), TotalMessages: total, MessagesInContext: total}
}

// FixedWindow keeps the newest MaxMessages entries.
type FixedWindow struct {
	maxMessages int
}

// NewFixedWindow creates a FixedWindow. Non-positive budgets select nothing.
func NewFixedWindow(maxMessages int) *FixedWindow {
	return &FixedWindow{maxMessages: maxMessages}
}

// Name implements Strategy.
func (w *FixedWindow) Name() string { return string(KindFixed) }

// Apply keeps the last maxMessages entries. The cut is not moved to respect
// tool call pairs.
func (w *FixedWindow) Apply(history []core.Entry) []core.Entry {
	if w.maxMessages <= 0 {
		return []core.Entry{}
	}
	start := 0
	if len(history) > w.maxMessages {
		start = len(history) - w.maxMessages
	}
	return append([]core.Entry(nil), history[start:]...)
}

// Stats implements Strategy.
func (w *FixedWindow) Stats(total int) Stats {
	in := min(total, max(w.maxMessages, 0))
	return Stats{
		Strategy:          string(KindFixed),
		MaxMessages:       w.maxMessages,
		TotalMessages:     total,
		MessagesInContext: in,
		MessagesDropped:   total - in,
	}
}

var (
	_ Strategy = None{}
	_ Strategy = (*FixedWindow)(nil)
	_ Strategy = (*SmartWindow)(nil)
)
