// Package logging provides a minimal logging interface and adapters for agentrelay.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the orchestrator, coordinator and transports use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RelayLogger with agent / conversation context and turn, tool and model helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch, err := orchestrator.New(address, llm, messenger, func(o *orchestrator.Options) {
//	    o.Logger = logger.WithComponent("orchestrator")
//	})
//
// The interface is kept minimal so any structured logger can be plugged in.
package logging
