// Package config loads agent configuration from YAML.
//
// Load and Parse start from Default, decode the file over it, apply
// AGENTRELAY_* environment overrides and validate the result. Builders turn
// sections into runtime objects: ContextStrategy, Resolver, Logger and
// OrchestratorOptions.
//
// Example:
//
//	agent:
//	  address: support@example.com
//	  system_prompt: "You are {{.agent}}."
//	orchestrator:
//	  max_interactions: 50
//	  termination_markers: ["TERMINATE"]
//	  receive_timeout: 1s
//	context:
//	  strategy: smart
//	  max_messages: 40
//	  prioritize_tools: true
//	model:
//	  provider: openai
//	  name: gpt-4o-mini
package config
