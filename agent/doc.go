// Package agent contains the dialogue orchestrator: the turn-loop state
// machine that drives two independently configured agents through an
// alternating conversation.
//
// The package focuses on three concerns:
//
//  1. Immutable run settings and their pre-start validation (Settings)
//  2. The turn algorithm with strict alternation and a single bridge message (Dialogue)
//  3. Local resolution of every failure into a terminal event
//
// Execution Model:
//   - A Dialogue is created Idle by NewDialogue and driven once by Run
//   - Run executes on a single goroutine that exclusively owns both histories
//     and the structured log until it returns
//   - Cancellation is cooperative: the CancelToken (and the context) is
//     checked before each turn, never during an in-flight backend call
//   - Every outward communication goes through the emit callback
//
// Persistence, presentation and backend specifics live in their respective
// packages; this package only depends on core, model and logging.
package agent
