package trim

import (
	"github.com/hupe1980/agentrelay/core"
)

// SmartOptions configures a SmartWindow.
type SmartOptions struct {
	// PreserveInitial pins the first K entries of the history.
	PreserveInitial int
	// PrioritizeTools selects complete tool pairs before plain messages.
	PrioritizeTools bool
}

// SmartWindow trims a history to a message budget while keeping every
// complete tool call / tool result pair intact.
type SmartWindow struct {
	maxMessages int
	opts        SmartOptions
}

// NewSmartWindow creates a SmartWindow with the given budget.
func NewSmartWindow(maxMessages int, optFns ...func(o *SmartOptions)) *SmartWindow {
	opts := SmartOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PreserveInitial < 0 {
		opts.PreserveInitial = 0
	}
	return &SmartWindow{maxMessages: maxMessages, opts: opts}
}

// Name implements Strategy.
func (w *SmartWindow) Name() string { return string(KindSmart) }

// Stats implements Strategy. MessagesInContext is the upper bound the budget
// allows; Apply may select fewer entries when a pair does not fit.
func (w *SmartWindow) Stats(total int) Stats {
	in := min(total, max(w.maxMessages, 0))
	return Stats{
		Strategy:          string(KindSmart),
		MaxMessages:       w.maxMessages,
		TotalMessages:     total,
		MessagesInContext: in,
		MessagesDropped:   total - in,
		PreserveInitial:   w.opts.PreserveInitial,
		PrioritizeTools:   w.opts.PrioritizeTools,
	}
}

// Apply implements Strategy.
func (w *SmartWindow) Apply(history []core.Entry) []core.Entry {
	if w.maxMessages <= 0 {
		return []core.Entry{}
	}
	if len(history) <= w.maxMessages {
		return append([]core.Entry(nil), history...)
	}

	units := groupUnits(history)

	keep := make([]bool, len(history))
	budget := w.maxMessages

	// Pinned prefix. A pair crossing the boundary is left out as a whole.
	floor := 0
	if w.opts.PreserveInitial > 0 {
		limit := min(w.opts.PreserveInitial, w.maxMessages)
		for _, u := range units {
			if u.end > limit {
				break
			}
			for i := u.start; i < u.end; i++ {
				keep[i] = true
			}
			budget -= u.size()
		}
		floor = w.opts.PreserveInitial
	}

	// Candidates are units lying entirely at or after the floor, newest first.
	var candidates []unit
	for i := len(units) - 1; i >= 0; i-- {
		if units[i].start < floor {
			break
		}
		candidates = append(candidates, units[i])
	}

	take := func(u unit) {
		for i := u.start; i < u.end; i++ {
			keep[i] = true
		}
		budget -= u.size()
	}

	if w.opts.PrioritizeTools {
		for _, u := range candidates {
			if budget <= 0 {
				break
			}
			if u.pair && u.size() <= budget {
				take(u)
			}
		}
		for _, u := range candidates {
			if budget <= 0 {
				break
			}
			if !u.pair {
				take(u)
			}
		}
	} else {
		for _, u := range candidates {
			if budget <= 0 {
				break
			}
			if u.size() <= budget {
				take(u)
			}
		}
	}

	out := make([]core.Entry, 0, w.maxMessages)
	for i, e := range history {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

// unit is a contiguous range of history entries that is kept or dropped as a
// whole: either a single entry or a complete tool pair.
type unit struct {
	start, end int
	pair       bool
}

func (u unit) size() int { return u.end - u.start }

// ToolPair locates a complete tool exchange in a history: the assistant entry
// at Start and the tool results that answer every one of its calls, ending
// before End.
type ToolPair struct {
	Start int
	End   int
}

// FindToolPairs returns the complete tool pairs of history in order. An
// assistant entry with tool calls forms a pair with the contiguous tool
// entries following it when those answer every call id. Any other entry
// appearing before all ids are answered leaves the calls without a pair.
func FindToolPairs(history []core.Entry) []ToolPair {
	var pairs []ToolPair
	for i := 0; i < len(history); i++ {
		e := history[i]
		if e.Role != core.RoleAssistant || !e.HasToolCalls() {
			continue
		}
		pending := make(map[string]struct{}, len(e.ToolCalls))
		for _, tc := range e.ToolCalls {
			pending[tc.ID] = struct{}{}
		}
		j := i + 1
		for j < len(history) && len(pending) > 0 {
			next := history[j]
			if next.Role != core.RoleTool {
				break
			}
			if _, ok := pending[next.ToolCallID]; !ok {
				break
			}
			delete(pending, next.ToolCallID)
			j++
		}
		if len(pending) == 0 {
			pairs = append(pairs, ToolPair{Start: i, End: j})
			i = j - 1
		}
	}
	return pairs
}

func groupUnits(history []core.Entry) []unit {
	pairs := FindToolPairs(history)
	units := make([]unit, 0, len(history))
	p := 0
	for i := 0; i < len(history); {
		if p < len(pairs) && pairs[p].Start == i {
			units = append(units, unit{start: i, end: pairs[p].End, pair: true})
			i = pairs[p].End
			p++
			continue
		}
		units = append(units, unit{start: i, end: i + 1})
		i++
	}
	return units
}
