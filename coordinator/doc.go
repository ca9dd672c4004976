// Package coordinator runs a supervisor agent that delegates sub-tasks to
// worker agents.
//
// The supervisor is an ordinary orchestrator whose hooks the Coordinator
// installs: every message from or to a worker, or on the coordination
// thread, is keyed to one shared coordination conversation; the first
// outside sender is remembered as the original requester; and replies are
// routed so that the final answer, marked by a termination marker, goes back
// to that requester.
//
// The model drives delegation through two tools. send_to_agent sends a
// command and waits for the worker's reply on a single-shot channel that the
// orchestrator's inbound pump resolves, so other traffic keeps flowing while
// the supervisor waits. list_subagents reports each worker's status.
package coordinator
