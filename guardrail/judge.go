package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// DefaultJudgeInstructions asks the judge model for a one word verdict.
const DefaultJudgeInstructions = `You are a content safety reviewer. Reply with exactly one word:
SAFE if the following content is acceptable, UNSAFE otherwise.`

// Judge asks a model to classify content. An UNSAFE verdict blocks; an
// answer that is neither SAFE nor UNSAFE produces a warning.
type Judge struct {
	model        model.Model
	instructions string
}

// NewJudge creates a model-backed guardrail. Empty instructions select
// DefaultJudgeInstructions.
func NewJudge(m model.Model, instructions string) *Judge {
	if instructions == "" {
		instructions = DefaultJudgeInstructions
	}
	return &Judge{model: m, instructions: instructions}
}

// Name implements Guardrail.
func (j *Judge) Name() string { return "llm_judge" }

// Apply implements Guardrail.
func (j *Judge) Apply(ctx context.Context, content string, _ core.Message) (Decision, error) {
	resp, err := j.model.Generate(ctx, model.Request{Messages: []core.Entry{
		core.SystemEntry(j.instructions),
		core.UserEntry(content),
	}})
	if err != nil {
		return Decision{}, fmt.Errorf("judge model: %w", err)
	}
	verdict := strings.ToUpper(strings.TrimSpace(resp.Text))
	switch {
	case strings.HasPrefix(verdict, "UNSAFE"):
		return Decision{Action: ActionBlock, Reason: "judged unsafe"}, nil
	case strings.HasPrefix(verdict, "SAFE"):
		return Allow(), nil
	default:
		return Decision{Action: ActionWarn, Reason: fmt.Sprintf("unclear verdict %q", resp.Text)}, nil
	}
}
