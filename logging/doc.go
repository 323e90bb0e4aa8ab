// Package logging provides a minimal logging interface and adapters for agentduet.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine and the dialogue orchestrator use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - DuetLogger with run/component context and backend-call helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
//
// The interface is kept small so callers can plug any structured logger.
package logging
