package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/trim"
)

func TestStore_IsolatesConversations(t *testing.T) {
	s := NewStore()
	s.AddMessage("k1", core.UserEntry("secret for k1"))
	s.AddMessage("k2", core.UserEntry("hello k2"))

	for _, e := range s.Prompt("k2") {
		assert.NotContains(t, e.Content, "k1")
	}
	assert.Len(t, s.Prompt("k1"), 1)
	assert.Equal(t, []string{"k1", "k2"}, s.ActiveKeys())
}

func TestStore_PromptStripsMetadata(t *testing.T) {
	s := NewStore(func(o *Options) {
		o.SystemPrompt = "You are {{.agent}} handling {{.conversation}}."
		o.Agent = "bot@x"
	})
	in := core.FromMessage(core.NewMessage("alice@x", "bot@x", "t1", "hi"))
	s.AddMessage("t1", in)
	s.AddMessage("t1", core.ToolCallEntry("", core.ToolCall{ID: "c1", Name: "search"}))
	require.NoError(t, s.AddToolResult("t1", "search", "c1", "found"))

	prompt := s.Prompt("t1")
	require.Len(t, prompt, 4)
	assert.Equal(t, core.RoleSystem, prompt[0].Role)
	assert.Equal(t, "You are bot@x handling t1.", prompt[0].Content)
	assert.Empty(t, prompt[1].Sender)
	assert.Empty(t, prompt[1].Thread)
	assert.Equal(t, "c1", prompt[2].ToolCalls[0].ID)
	assert.Equal(t, "c1", prompt[3].ToolCallID)
	assert.Equal(t, "search", prompt[3].Name)

	// raw history keeps metadata
	assert.Equal(t, "alice@x", s.History("t1")[0].Sender)
}

func TestStore_AddToolResultUnknownConversation(t *testing.T) {
	s := NewStore()
	err := s.AddToolResult("missing", "search", "c1", "x")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Empty(t, s.ActiveKeys())
}

func TestStore_CurrentConversation(t *testing.T) {
	s := NewStore()
	s.AddMessage("a", core.UserEntry("1"))
	s.AddMessage("b", core.UserEntry("2"))
	assert.Equal(t, "b", s.Current())

	// empty key targets the current conversation
	s.AddMessage("", core.AssistantEntry("3"))
	assert.Equal(t, 2, s.Len("b"))

	assert.True(t, s.SetCurrent("a"))
	assert.False(t, s.SetCurrent("nope"))
	assert.Equal(t, "1", s.Prompt("")[0].Content)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.AddMessage("a", core.UserEntry("1"))
	s.AddMessage("b", core.UserEntry("2"))

	s.Clear("a")
	assert.Equal(t, []string{"b"}, s.ActiveKeys())
	assert.Zero(t, s.Len("a"))

	s.Clear(ClearAll)
	assert.Empty(t, s.ActiveKeys())
	assert.Empty(t, s.Current())
}

func TestStore_PromptUsesStrategy(t *testing.T) {
	s := NewStore(func(o *Options) {
		o.Strategy = trim.NewSmartWindow(4)
	})
	s.AddMessage("k", core.UserEntry("question"))
	s.AddMessage("k", core.ToolCallEntry("", core.ToolCall{ID: "c1", Name: "search"}))
	require.NoError(t, s.AddToolResult("k", "search", "c1", "r"))
	s.AddMessage("k", core.UserEntry("follow up"))
	s.AddMessage("k", core.AssistantEntry("answer"))

	assert.Len(t, s.Prompt("k"), 4)

	st := s.Stats("k")
	assert.Equal(t, "smart", st.Strategy)
	assert.Equal(t, 5, st.TotalMessages)
	assert.Equal(t, 4, st.MessagesInContext)
	assert.Equal(t, 1, st.MessagesDropped)
	assert.Equal(t, 1, st.ToolPairs)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(func(o *Options) { o.Strategy = trim.NewFixedWindow(5) })
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			s.AddMessage(key, core.UserEntry("m"))
			_ = s.Prompt(key)
			_ = s.Stats(key)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.ActiveKeys(), 4)
}

func TestStore_PromptKeepsToolPairsWithSmartWindow(t *testing.T) {
	s := NewStore(func(o *Options) {
		o.Strategy = trim.NewSmartWindow(3)
	})
	for _, e := range testutil.NewHistoryBuilder().Users(4).ToolPair("search", "weather").Build() {
		s.AddMessage("k", e)
	}

	prompt := s.Prompt("k")
	require.Len(t, prompt, 3)
	assert.True(t, prompt[0].HasToolCalls())
	assert.Equal(t, "call_1", prompt[1].ToolCallID)
	assert.Equal(t, "call_2", prompt[2].ToolCallID)
}
