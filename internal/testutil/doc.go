// Package testutil contains helpers shared by tests: a scriptable messenger
// that records every send and a fluent builder for conversation histories.
// They are not intended for production usage.
package testutil
