// Package session holds the per-conversation context store.
//
// A Store keeps one ordered entry log per conversation key and converts a log
// into a provider-ready prompt: the rendered system prompt followed by the
// entries the configured trim.Strategy selects, stripped of house-keeping
// metadata. Conversations never share entries.
package session
