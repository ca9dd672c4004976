// Package core provides the foundational domain types and collaborator
// interfaces used by agentrelay. It defines:
//
//   - Entries (role-tagged context messages with tool call / result pairing)
//   - Messages (agent-to-agent envelopes carried by a Messenger)
//   - Conversations (per-key lifecycle state and interaction counters)
//   - ToolContext (scoped execution surface handed to tools)
//   - Collaborator contracts for messaging and long-term memory
//
// Implementation concerns (context storage, trimming, orchestration, concrete
// transports and providers) live in sibling packages and depend on these small
// types and interfaces only.
package core
