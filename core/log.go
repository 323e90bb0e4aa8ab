package core

// SystemSpeaker is the speaker name used for header and terminal log entries.
const SystemSpeaker = "System"

// EntryKind classifies a structured log entry.
type EntryKind string

const (
	// EntryHeader is the first entry of every log and introduces personas and style.
	EntryHeader EntryKind = "header"
	// EntryDialogue is one agent's completed turn.
	EntryDialogue EntryKind = "dialogue"
	// EntryTerminal records why a run ended early (cancelled or failed).
	EntryTerminal EntryKind = "terminal"
)

// LogEntry is a single record of the structured log.
type LogEntry struct {
	Speaker string    `json:"speaker"`
	Agent   int       `json:"agent,omitempty"`
	Kind    EntryKind `json:"kind"`
	Content string    `json:"content"`
}

// IsSystem reports whether the entry was written by the orchestrator rather than an agent.
func (e LogEntry) IsSystem() bool { return e.Kind != EntryDialogue }

// StructuredLog is the append-only record of a run. Only the orchestrator
// appends to it while the run is active; once the run is terminal it is handed
// out read-only via Entries.
type StructuredLog struct {
	entries []LogEntry
}

// NewStructuredLog creates a log whose first entry is the session header.
func NewStructuredLog(header string) *StructuredLog {
	return &StructuredLog{entries: []LogEntry{{Speaker: SystemSpeaker, Kind: EntryHeader, Content: header}}}
}

// AppendDialogue records an agent turn.
func (l *StructuredLog) AppendDialogue(agent int, speaker, content string) {
	l.entries = append(l.entries, LogEntry{Speaker: speaker, Agent: agent, Kind: EntryDialogue, Content: content})
}

// AppendTerminal records the reason a run stopped before completing every
// turn. agent names the agent whose turn failed, or 0 for a cancellation.
func (l *StructuredLog) AppendTerminal(agent int, content string) {
	l.entries = append(l.entries, LogEntry{Speaker: SystemSpeaker, Agent: agent, Kind: EntryTerminal, Content: content})
}

// Len returns the number of entries including the header.
func (l *StructuredLog) Len() int { return len(l.entries) }

// Entries returns a copy of every entry in order.
func (l *StructuredLog) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Dialogue returns only the agent turns.
func (l *StructuredLog) Dialogue() []LogEntry {
	return DialogueEntries(l.entries)
}

// DialogueEntries filters entries down to agent turns.
func DialogueEntries(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == EntryDialogue {
			out = append(out, e)
		}
	}
	return out
}
