package guardrail

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/hupe1980/agentrelay/core"
)

// PolicyQuery is the rego rule a policy must define.
const PolicyQuery = "data.agentrelay.guardrail.decision"

// DefaultPolicy blocks credential-looking content and warns on shouting.
const DefaultPolicy = `
package agentrelay.guardrail

default decision = "allow"

decision = {"action": "block", "reason": "credential material"} {
	regex.match("(?i)(api[_-]?key|password|secret)\\s*[:=]", input.content)
}
`

// Policy evaluates content with an OPA rego policy.
//
// The policy receives input {stage, content, sender, to, thread, metadata}
// and its decision rule yields either an action string ("allow", "warn",
// "block") or an object {action, reason, content, reply}. Returning
// action "modify" requires content.
type Policy struct {
	stage Stage
	query rego.PreparedEvalQuery
}

// NewPolicy prepares policyContent for evaluation.
func NewPolicy(ctx context.Context, stage Stage, policyContent string) (*Policy, error) {
	r := rego.New(
		rego.Query(PolicyQuery),
		rego.Module("guardrail.rego", policyContent),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Policy{stage: stage, query: query}, nil
}

// Name implements Guardrail.
func (p *Policy) Name() string { return "policy" }

// Apply implements Guardrail.
func (p *Policy) Apply(ctx context.Context, content string, msg core.Message) (Decision, error) {
	input := map[string]any{
		"stage":    string(p.stage),
		"content":  content,
		"sender":   msg.Sender,
		"to":       msg.To,
		"thread":   msg.Thread,
		"metadata": msg.Metadata,
	}
	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Allow(), nil
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(v any) (Decision, error) {
	switch val := v.(type) {
	case string:
		return checkDecision(Decision{Action: Action(val)})
	case map[string]any:
		d := Decision{}
		if a, ok := val["action"].(string); ok {
			d.Action = Action(a)
		}
		d.Reason, _ = val["reason"].(string)
		d.Content, _ = val["content"].(string)
		d.Reply, _ = val["reply"].(string)
		return checkDecision(d)
	default:
		return Decision{}, fmt.Errorf("unexpected policy decision type %T", v)
	}
}

func checkDecision(d Decision) (Decision, error) {
	switch d.Action {
	case ActionAllow, ActionWarn, ActionBlock:
		return d, nil
	case ActionModify:
		if d.Content == "" {
			return Decision{}, fmt.Errorf("policy modify decision without content")
		}
		return d, nil
	default:
		return Decision{}, fmt.Errorf("unknown policy action %q", d.Action)
	}
}
