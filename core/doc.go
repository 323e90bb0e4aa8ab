// Package core provides the foundational domain types shared by every other
// package in agentduet. It defines the core abstractions for:
//
//   - Messages and per-agent conversation histories
//   - The append-only structured log of a dialogue run
//   - Events (ordered progress records flowing from a run to its consumer)
//   - Run state, the one-shot cancellation token and finalized transcripts
//   - Pluggable stores for archived transcripts
//
// The package keeps implementation concerns (backends, orchestration,
// persistence) out of scope, exposing small value types and interfaces so the
// orchestrator, the execution host and external collaborators can agree on a
// common vocabulary without depending on each other.
package core
