// Package engine implements the execution host for agentduet dialogue runs.
//
// The Engine runs exactly one dialogue at a time on a background goroutine so
// that slow backend calls never block the goroutine that owns presentation
// state. All outward communication flows through a single long-lived,
// ordered event channel.
//
// # Core Responsibilities
//
// Run Management:
//   - Validation of settings before a run leaves Idle
//   - Rejection of a second run while one is active
//   - Cooperative stop requests through the run's cancellation token
//
// Event Relay:
//   - One buffered channel carrying text-append, model-list-update and
//     run-finished events in emission order
//   - Non-blocking Poll for consumers that drain on a fixed interval
//   - No dropped text events: a full buffer applies backpressure to the run
//
// Finalization:
//   - The finished transcript is archived through a core.TranscriptStore and
//     handed to RunFinished callbacks before the terminal event is delivered
//   - The active slot is released in the same step that queues the terminal
//     event
//
// Model Discovery:
//   - RefreshModels spawns a short-lived goroutine per backend switch that is
//     independent of any active run
//   - The goroutine waits for buffer space until its ctx is cancelled, then
//     drops the update
//
// # Usage Patterns
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Logger = logger
//	    o.TranscriptStore = session.NewFileStore("history")
//	})
//
//	runID, events, err := eng.Start(ctx, settings)
//	if err != nil {
//	    return err
//	}
//
//	ticker := time.NewTicker(eng.PollInterval())
//	for range ticker.C {
//	    for _, ev := range eng.Poll(0) {
//	        render(ev)
//	    }
//	}
//
// # Concurrency Model
//
// The only state shared with a run goroutine is the event channel and the
// one-shot cancellation token. The engine's own bookkeeping (the active slot
// and the results map) is guarded by a mutex that is never held while a
// backend is called or while waiting for buffer space. A run keeps the active
// slot until its terminal event is queued, so events of consecutive runs never
// interleave.
package engine
