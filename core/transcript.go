package core

import (
	"errors"
	"time"
)

// ErrTranscriptNotFound is returned by a TranscriptStore when an ID is unknown.
var ErrTranscriptNotFound = errors.New("transcript not found")

// Participant describes one side of a finished run.
type Participant struct {
	Label       string `json:"label"`
	PersonaName string `json:"persona_name,omitempty"`
	Backend     string `json:"backend"`
	Model       string `json:"model"`
}

// Transcript is the finalized, read-only record of a run. It is produced once
// the run reaches a terminal state and is what archive and export
// collaborators consume.
type Transcript struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	State      RunState    `json:"state"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"`
	Topic      string      `json:"topic"`
	Rounds     int         `json:"rounds"`
	Agent1     Participant `json:"agent1"`
	Agent2     Participant `json:"agent2"`
	Style      string      `json:"style,omitempty"`
	Entries    []LogEntry  `json:"entries"`
}

// Dialogue returns only the agent turns of the transcript.
func (t Transcript) Dialogue() []LogEntry { return DialogueEntries(t.Entries) }

// Clone returns a deep copy safe for independent use.
func (t Transcript) Clone() Transcript {
	c := t
	c.Entries = append([]LogEntry(nil), t.Entries...)
	return c
}

// TranscriptSummary is a lightweight listing record.
type TranscriptSummary struct {
	RunID      string    `json:"run_id"`
	FinishedAt time.Time `json:"finished_at"`
	State      RunState  `json:"state"`
	Topic      string    `json:"topic"`
}

// TranscriptStore archives finished runs.
type TranscriptStore interface {
	Save(t Transcript) error
	Get(runID string) (Transcript, error)
	List() ([]TranscriptSummary, error)
	Delete(runID string) error
}
