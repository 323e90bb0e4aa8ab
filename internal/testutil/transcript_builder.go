package testutil

import (
	"time"

	"github.com/hupe1980/agentduet/core"
)

// TranscriptBuilder provides a fluent helper for constructing finished
// transcripts in tests.
// Example:
//
//	tr := NewTranscriptBuilder("run-1").Header("intro").Turn(1, "Agent1", "hi").Build()
//
// Timestamps are fixed so output derived from the transcript is reproducible.
type TranscriptBuilder struct {
	t   core.Transcript
	log *core.StructuredLog
}

// NewTranscriptBuilder creates a completed transcript builder for runID.
func NewTranscriptBuilder(runID string) *TranscriptBuilder {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &TranscriptBuilder{t: core.Transcript{
		RunID:      runID,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		State:      core.RunCompleted,
		Topic:      "testing",
		Rounds:     1,
		Agent1:     core.Participant{Label: "Agent1", Backend: "scripted", Model: "m1"},
		Agent2:     core.Participant{Label: "Agent2", Backend: "scripted", Model: "m2"},
	}}
}

// Header starts the log with a session header (chainable). Must be called first.
func (b *TranscriptBuilder) Header(h string) *TranscriptBuilder {
	b.log = core.NewStructuredLog(h)
	return b
}

// Turn appends a dialogue entry (chainable).
func (b *TranscriptBuilder) Turn(agent int, speaker, content string) *TranscriptBuilder {
	b.ensureLog()
	b.log.AppendDialogue(agent, speaker, content)
	return b
}

// Terminal appends a terminal entry and sets the state (chainable).
func (b *TranscriptBuilder) Terminal(state core.RunState, agent int, content string) *TranscriptBuilder {
	b.ensureLog()
	b.log.AppendTerminal(agent, content)
	b.t.State = state
	return b
}

// Topic sets the topic (chainable).
func (b *TranscriptBuilder) Topic(topic string) *TranscriptBuilder { b.t.Topic = topic; return b }

// FinishedAt overrides the finish time (chainable).
func (b *TranscriptBuilder) FinishedAt(ts time.Time) *TranscriptBuilder {
	b.t.FinishedAt = ts
	return b
}

// Build returns the transcript.
func (b *TranscriptBuilder) Build() core.Transcript {
	b.ensureLog()
	t := b.t
	t.Entries = b.log.Entries()
	return t
}

func (b *TranscriptBuilder) ensureLog() {
	if b.log == nil {
		b.log = core.NewStructuredLog("header")
	}
}
