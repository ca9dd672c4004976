// Package orchestrator drives one agent's reaction to inbound messages.
//
// Every inbound message is one turn: deduplicate, resolve the conversation,
// run input guardrails, record the message, resolve tool calls with the
// model until it produces a final answer, run output guardrails, record the
// answer, detect termination and dispatch the reply to the recipients the
// routing resolver picks. Turns run one at a time; Run pulls messages from a
// core.Messenger and feeds them through HandleMessage.
package orchestrator
