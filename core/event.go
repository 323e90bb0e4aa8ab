package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes the event categories flowing through the run channel.
type EventKind string

const (
	// EventTextAppend carries a chunk of dialogue or a status line. Text-append
	// events must be applied in emission order.
	EventTextAppend EventKind = "text_append"
	// EventModelListUpdate carries the models discovered for one agent slot.
	// Consumers apply them last-write-wins per Agent.
	EventModelListUpdate EventKind = "model_list_update"
	// EventRunFinished is the terminal text-append of a run. It carries the
	// final status line together with the terminal State and, on failure, the
	// ErrorKind and the offending Speaker.
	EventRunFinished EventKind = "run_finished"
)

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	// ErrorNone marks events that do not describe a failure.
	ErrorNone ErrorKind = ""
	// ErrorTransport means a backend could not be reached or answered with a non-success status.
	ErrorTransport ErrorKind = "transport"
	// ErrorMalformedResponse means a backend answered without the expected content.
	ErrorMalformedResponse ErrorKind = "malformed_response"
)

// Event is the unit of communication between a run and its consumer. After
// emission it should be treated as immutable. It captures:
//   - Correlation (RunID, ID)
//   - Dialogue text or status lines (Text, Speaker, Agent)
//   - Terminal classification (State, ErrorKind, Detail)
//   - Discovered models for a backend switch (Models)
//   - UTC timestamp
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Agent     int       `json:"agent,omitempty"`
	State     RunState  `json:"state,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Models    []string  `json:"models,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates a bare event of the given kind bound to a run.
func NewEvent(runID string, kind EventKind) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewTextEvent creates a text-append event.
func NewTextEvent(runID, text string) Event {
	e := NewEvent(runID, EventTextAppend)
	e.Text = text
	return e
}

// NewModelListEvent creates a model-list-update event for the given agent slot.
func NewModelListEvent(agent int, models []string) Event {
	e := NewEvent("", EventModelListUpdate)
	e.Agent = agent
	e.Models = append([]string(nil), models...)
	return e
}

// NewFinishedEvent creates the terminal event of a run.
func NewFinishedEvent(runID string, state RunState, text string) Event {
	e := NewEvent(runID, EventRunFinished)
	e.State = state
	e.Text = text
	return e
}

// IsTerminal reports whether the event ends a run.
func (e Event) IsTerminal() bool { return e.Kind == EventRunFinished }

// IsText reports whether the event carries text that must be rendered in order.
func (e Event) IsText() bool { return e.Kind == EventTextAppend || e.Kind == EventRunFinished }

// NewID returns a new globally unique identifier.
func NewID() string { return uuid.NewString() }
