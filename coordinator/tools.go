package coordinator

import (
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// Tool names exposed to the supervisor's model.
const (
	SendToAgentToolName   = "send_to_agent"
	ListSubagentsToolName = "list_subagents"
)

// Tools returns the send_to_agent and list_subagents tools.
func (c *Coordinator) Tools() []tool.Tool {
	return []tool.Tool{c.sendToAgentTool(), c.listSubagentsTool()}
}

func (c *Coordinator) sendToAgentTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		SendToAgentToolName,
		"Send a command to one worker agent and wait for its reply.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_id": map[string]any{
					"type":        "string",
					"description": "Address of the worker, one of: " + strings.Join(c.opts.Workers, ", "),
				},
				"command": map[string]any{"type": "string", "description": "Instruction for the worker"},
			},
			"required": []string{"agent_id", "command"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			worker, _ := args["agent_id"].(string)
			command, _ := args["command"].(string)
			return c.sendToAgent(tc.Context(), tc.ConversationKey(), worker, command)
		},
	)
}

func (c *Coordinator) listSubagentsTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		ListSubagentsToolName,
		"List the worker agents and their current status.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(*core.ToolContext, map[string]any) (any, error) {
			return c.ListSubagents(), nil
		},
	)
}

