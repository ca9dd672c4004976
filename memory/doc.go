// Package memory contains long-term memory providers. A provider stores facts
// per conversation key (core.MemoryWriter) and renders them as a summary
// that the orchestrator injects once per conversation as a system note
// (core.MemoryProvider).
//
// InMemoryStore is process local. The sqlite sub-package persists facts in a
// database file.
package memory
