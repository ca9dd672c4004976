package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

func TestBuildMessages_PairsToolResults(t *testing.T) {
	msgs := buildMessages([]core.Entry{
		core.SystemEntry("rules"),
		core.UserEntry("find go"),
		core.ToolCallEntry("", core.ToolCall{ID: "c1", Name: "search", Arguments: `{"q":"go"}`}),
		core.ToolResultEntry("search", "c1", "found"),
		core.AssistantEntry("done"),
	})
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "c1", msgs[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildMessages_DropsOrphans(t *testing.T) {
	msgs := buildMessages([]core.Entry{
		core.ToolResultEntry("search", "gone", "stale"),
		core.ToolCallEntry("", core.ToolCall{ID: "c2", Name: "search"}),
		core.UserEntry("hi"),
	})
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].OfUser)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "gpt-test"
		o.APIKey = "sk-test"
	})
	assert.Equal(t, model.Info{Name: "gpt-test", Provider: "openai", SupportsTools: true}, m.Info())
}
