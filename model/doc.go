// Package model defines the provider-agnostic contract for the language
// model behind an agent.
//
// A Model performs one opaque round trip: it receives the trimmed entry log
// plus the registered tool definitions and returns final text, tool call
// requests, or both. Providers (OpenAI, Anthropic) live in sub-packages so
// the orchestration layers stay decoupled from vendor SDKs. MockModel serves
// tests and examples with scripted answers.
package model
