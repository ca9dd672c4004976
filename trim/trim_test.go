package trim

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func plainHistory(pairs int) []core.Entry {
	var h []core.Entry
	for i := 0; i < pairs; i++ {
		h = append(h, core.UserEntry(fmt.Sprintf("u%d", i)), core.AssistantEntry(fmt.Sprintf("a%d", i)))
	}
	return h
}

func contents(entries []core.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func toolHistory() []core.Entry {
	return []core.Entry{
		core.UserEntry("question"),
		core.ToolCallEntry("call", core.ToolCall{ID: "c1", Name: "search"}),
		core.ToolResultEntry("search", "c1", "result"),
		core.UserEntry("follow up"),
		core.AssistantEntry("answer"),
	}
}

func TestNone_ReturnsEverything(t *testing.T) {
	h := plainHistory(10)
	out := None{}.Apply(h)
	assert.Equal(t, h, out)

	st := None{}.Stats(20)
	assert.Equal(t, 20, st.MessagesInContext)
	assert.Zero(t, st.MessagesDropped)
}

func TestFixedWindow_KeepsNewest(t *testing.T) {
	h := plainHistory(5)
	out := NewFixedWindow(3).Apply(h)
	assert.Equal(t, []string{"a3", "u4", "a4"}, contents(out))

	st := NewFixedWindow(3).Stats(len(h))
	assert.Equal(t, 3, st.MessagesInContext)
	assert.Equal(t, 7, st.MessagesDropped)
	assert.Equal(t, "fixed", st.Strategy)
}

func TestFixedWindow_ShortHistory(t *testing.T) {
	h := plainHistory(1)
	assert.Equal(t, h, NewFixedWindow(10).Apply(h))
}

func TestFixedWindow_MaySplitPairs(t *testing.T) {
	// cut lands between the call and its result
	out := NewFixedWindow(3).Apply(toolHistory())
	require.Len(t, out, 3)
	assert.Equal(t, core.RoleTool, out[0].Role)
}

func TestSmartWindow_KeepsPairIntact(t *testing.T) {
	out := NewSmartWindow(4).Apply(toolHistory())
	assert.Equal(t, []string{"call", "result", "follow up", "answer"}, contents(out))
}

func TestSmartWindow_SkipsPairThatDoesNotFit(t *testing.T) {
	out := NewSmartWindow(3).Apply(toolHistory())
	// pair of size 2 does not fit after the last two entries, so the scan
	// continues past it
	assert.Equal(t, []string{"question", "follow up", "answer"}, contents(out))
}

func TestSmartWindow_PreserveInitial(t *testing.T) {
	h := plainHistory(5)
	out := NewSmartWindow(4, func(o *SmartOptions) { o.PreserveInitial = 1 }).Apply(h)
	assert.Equal(t, []string{"u0", "a3", "u4", "a4"}, contents(out))
}

func TestSmartWindow_PreserveInitialDoesNotSplitPair(t *testing.T) {
	h := append(toolHistory(), plainHistory(2)...)
	out := NewSmartWindow(4, func(o *SmartOptions) { o.PreserveInitial = 2 }).Apply(h)
	// index 1 starts a pair that crosses the pinned boundary
	assert.Equal(t, []string{"question", "a0", "u1", "a1"}, contents(out))
	assertPairsAtomic(t, out)
}

func TestSmartWindow_PrioritizeTools(t *testing.T) {
	h := []core.Entry{
		core.UserEntry("u0"),
		core.ToolCallEntry("call", core.ToolCall{ID: "c1", Name: "search"}),
		core.ToolResultEntry("search", "c1", "result"),
		core.UserEntry("u1"),
		core.AssistantEntry("a1"),
		core.UserEntry("u2"),
		core.AssistantEntry("a2"),
	}
	out := NewSmartWindow(4, func(o *SmartOptions) { o.PrioritizeTools = true }).Apply(h)
	assert.Equal(t, []string{"call", "result", "u2", "a2"}, contents(out))
}

func TestSmartWindow_PreserveAndPrioritize(t *testing.T) {
	h := []core.Entry{
		core.SystemEntry("rules"),
		core.UserEntry("u0"),
		core.ToolCallEntry("call", core.ToolCall{ID: "c1", Name: "search"}),
		core.ToolResultEntry("search", "c1", "result"),
		core.UserEntry("u1"),
		core.AssistantEntry("a1"),
	}
	out := NewSmartWindow(4, func(o *SmartOptions) {
		o.PreserveInitial = 1
		o.PrioritizeTools = true
	}).Apply(h)
	assert.Equal(t, []string{"rules", "call", "result", "a1"}, contents(out))
}

func TestSmartWindow_MultiCallPair(t *testing.T) {
	h := []core.Entry{
		core.UserEntry("u0"),
		core.ToolCallEntry("", core.ToolCall{ID: "c1", Name: "a"}, core.ToolCall{ID: "c2", Name: "b"}),
		core.ToolResultEntry("a", "c1", "r1"),
		core.ToolResultEntry("b", "c2", "r2"),
		core.AssistantEntry("done"),
	}
	pairs := FindToolPairs(h)
	require.Len(t, pairs, 1)
	assert.Equal(t, ToolPair{Start: 1, End: 4}, pairs[0])

	out := NewSmartWindow(3).Apply(h)
	// 3-entry pair does not fit next to "done"
	assert.Equal(t, []string{"u0", "done"}, contents(out))
}

func TestFindToolPairs_IncompleteMatch(t *testing.T) {
	h := []core.Entry{
		core.ToolCallEntry("", core.ToolCall{ID: "c1", Name: "a"}, core.ToolCall{ID: "c2", Name: "b"}),
		core.ToolResultEntry("a", "c1", "r1"),
		core.UserEntry("interrupt"),
		core.ToolResultEntry("b", "c2", "r2"),
	}
	assert.Empty(t, FindToolPairs(h))
}

func TestNew(t *testing.T) {
	s, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, "none", s.Name())

	s, err = New(Options{Kind: KindSmart, MaxMessages: 5, PreserveInitial: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stats(10).PreserveInitial)

	_, err = New(Options{Kind: KindFixed})
	assert.Error(t, err)

	_, err = New(Options{Kind: "lru"})
	assert.Error(t, err)
}

// randomHistory builds a history mixing plain entries, complete pairs and
// incomplete calls.
func randomHistory(r *rand.Rand, n int) []core.Entry {
	var h []core.Entry
	call := 0
	for len(h) < n {
		switch r.Intn(4) {
		case 0:
			h = append(h, core.UserEntry("u"))
		case 1:
			h = append(h, core.AssistantEntry("a"))
		case 2:
			k := 1 + r.Intn(3)
			calls := make([]core.ToolCall, k)
			for i := range calls {
				call++
				calls[i] = core.ToolCall{ID: fmt.Sprintf("c%d", call), Name: "t"}
			}
			h = append(h, core.ToolCallEntry("", calls...))
			for _, c := range calls {
				h = append(h, core.ToolResultEntry("t", c.ID, "r"))
			}
		case 3:
			call++
			h = append(h, core.ToolCallEntry("", core.ToolCall{ID: fmt.Sprintf("c%d", call), Name: "t"}))
			h = append(h, core.UserEntry("no result"))
		}
	}
	return h
}

func assertPairsAtomic(t *testing.T, out []core.Entry) {
	t.Helper()
	results := map[string]bool{}
	for _, e := range out {
		if e.Role == core.RoleTool {
			results[e.ToolCallID] = true
		}
	}
	for _, pair := range FindToolPairs(out) {
		for _, tc := range out[pair.Start].ToolCalls {
			assert.True(t, results[tc.ID])
		}
	}
	// every result in the output still has its call in the output
	calls := map[string]bool{}
	for _, e := range out {
		for _, tc := range e.ToolCalls {
			calls[tc.ID] = true
		}
	}
	for id := range results {
		assert.True(t, calls[id], "orphaned tool result %s", id)
	}
}

func TestSmartWindow_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		h := randomHistory(r, 5+r.Intn(40))
		maxMessages := 1 + r.Intn(12)
		w := NewSmartWindow(maxMessages, func(o *SmartOptions) {
			o.PreserveInitial = r.Intn(4)
			o.PrioritizeTools = r.Intn(2) == 0
		})
		out := w.Apply(h)

		assert.LessOrEqual(t, len(out), maxMessages)
		assertPairsAtomic(t, out)
	}
}
