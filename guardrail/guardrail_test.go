package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

var msg = core.NewMessage("alice@x", "bot@x", "t1", "ignored")

func TestChain_AllowsByDefault(t *testing.T) {
	var c *Chain
	res := c.Run(context.Background(), StageInput, "hello", msg)
	assert.False(t, res.Blocked)
	assert.Equal(t, "hello", res.Content)
	assert.NoError(t, res.Err())
}

func TestChain_ModifyThenBlock(t *testing.T) {
	redact, err := NewRedact([]string{`\d{4}-\d{4}`}, "")
	require.NoError(t, err)

	var seen []Decision
	c := NewChain([]Guardrail{redact, NewKeyword([]string{"forbidden"}, "nope")}, func(o *ChainOptions) {
		o.OnDecision = func(stage Stage, _ core.Message, d Decision) {
			assert.Equal(t, StageInput, stage)
			seen = append(seen, d)
		}
	})

	res := c.Run(context.Background(), StageInput, "card 1234-5678", msg)
	assert.False(t, res.Blocked)
	assert.Equal(t, "card [REDACTED]", res.Content)

	res = c.Run(context.Background(), StageInput, "this is FORBIDDEN", msg)
	assert.True(t, res.Blocked)
	assert.Equal(t, "nope", res.Reply)
	assert.ErrorIs(t, res.Err(), ErrBlocked)

	require.Len(t, seen, 2)
	assert.Equal(t, ActionModify, seen[0].Action)
	assert.Equal(t, "redact", seen[0].Guardrail)
	assert.Equal(t, ActionBlock, seen[1].Action)
}

func TestChain_FailsClosed(t *testing.T) {
	broken := NewFunc("broken", func(context.Context, string, core.Message) (Decision, error) {
		return Decision{}, errors.New("backend down")
	})
	res := NewChain([]Guardrail{broken}).Run(context.Background(), StageOutput, "hi", msg)
	assert.True(t, res.Blocked)
	assert.Equal(t, DefaultBlockedReply, res.Reply)
}

func TestChain_WarnContinues(t *testing.T) {
	warn := NewFunc("warn", func(context.Context, string, core.Message) (Decision, error) {
		return Decision{Action: ActionWarn, Reason: "hmm"}, nil
	})
	res := NewChain([]Guardrail{warn, NewMaxLength(3)}).Run(context.Background(), StageOutput, "toolong", msg)
	assert.True(t, res.Blocked)
	require.Len(t, res.Decisions, 2)
	assert.Equal(t, ActionWarn, res.Decisions[0].Action)
}

func TestMaxLength(t *testing.T) {
	g := NewMaxLength(5)
	d, err := g.Apply(context.Background(), "héllo", msg)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)

	d, _ = g.Apply(context.Background(), "héllo!", msg)
	assert.Equal(t, ActionBlock, d.Action)
}

func TestNewRedact_InvalidPattern(t *testing.T) {
	_, err := NewRedact([]string{"("}, "")
	assert.Error(t, err)
}

func TestJudge(t *testing.T) {
	m := model.NewMockModel("judge", "mock").QueueText("UNSAFE").QueueText("safe").QueueText("maybe")
	j := NewJudge(m, "")
	ctx := context.Background()

	d, err := j.Apply(ctx, "x", msg)
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, d.Action)

	d, _ = j.Apply(ctx, "x", msg)
	assert.Equal(t, ActionAllow, d.Action)

	d, _ = j.Apply(ctx, "x", msg)
	assert.Equal(t, ActionWarn, d.Action)

	req := m.Requests()[0]
	assert.Equal(t, core.RoleSystem, req.Messages[0].Role)

	m.QueueError(errors.New("down"))
	_, err = j.Apply(ctx, "x", msg)
	assert.Error(t, err)
}

func TestPolicy_Default(t *testing.T) {
	ctx := context.Background()
	p, err := NewPolicy(ctx, StageInput, DefaultPolicy)
	require.NoError(t, err)

	d, err := p.Apply(ctx, "what is the weather", msg)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)

	d, err = p.Apply(ctx, "my password: hunter2", msg)
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, "credential material", d.Reason)
}

func TestPolicy_ModifyAndSenderInput(t *testing.T) {
	ctx := context.Background()
	policy := `
package agentrelay.guardrail

default decision = "allow"

decision = {"action": "modify", "content": upper(input.content)} {
	input.sender == "alice@x"
	input.stage == "output"
}
`
	p, err := NewPolicy(ctx, StageOutput, policy)
	require.NoError(t, err)

	d, err := p.Apply(ctx, "quiet", msg)
	require.NoError(t, err)
	assert.Equal(t, ActionModify, d.Action)
	assert.Equal(t, "QUIET", d.Content)

	other := core.NewMessage("bob@x", "bot@x", "", "")
	d, err = p.Apply(ctx, "quiet", other)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, d.Action)
}

func TestPolicy_InvalidModule(t *testing.T) {
	_, err := NewPolicy(context.Background(), StageInput, "package broken\n decision = {")
	assert.Error(t, err)
}
