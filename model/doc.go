// Package model defines the provider-agnostic backend abstraction used by the
// dialogue orchestrator together with a scripted in-memory backend for tests
// and dry runs.
//
// Core goals:
//   - Normalize chat generation and model discovery across local and cloud providers
//   - Report failures as classified values (*Error) instead of faults
//   - Keep request shapes minimal and transport independent
//
// Concrete providers live in sub-packages (ollama, gemini, openai, anthropic)
// so higher layers remain decoupled from vendor SDKs and wire formats.
package model
