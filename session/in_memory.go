package session

import (
	"sort"
	"sync"

	"github.com/hupe1980/agentduet/core"
)

var _ core.TranscriptStore = (*InMemoryStore)(nil)

// InMemoryStore is a volatile TranscriptStore storing transcripts in a
// process local map. It is safe for concurrent access. Each returned
// transcript is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string]core.Transcript
}

// NewInMemoryStore constructs an empty in-memory transcript store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string]core.Transcript)}
}

// Save stores a clone of the transcript, replacing any earlier one with the same run ID.
func (s *InMemoryStore) Save(t core.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[t.RunID] = t.Clone()
	return nil
}

// Get returns a clone of the stored transcript.
func (s *InMemoryStore) Get(runID string) (core.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[runID]
	if !ok {
		return core.Transcript{}, core.ErrTranscriptNotFound
	}
	return t.Clone(), nil
}

// List returns summaries sorted newest-first.
func (s *InMemoryStore) List() ([]core.TranscriptSummary, error) {
	s.mu.RLock()
	out := make([]core.TranscriptSummary, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		out = append(out, summarize(t))
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

// Delete removes a transcript. Unknown IDs yield core.ErrTranscriptNotFound.
func (s *InMemoryStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transcripts[runID]; !ok {
		return core.ErrTranscriptNotFound
	}
	delete(s.transcripts, runID)
	return nil
}

func summarize(t core.Transcript) core.TranscriptSummary {
	return core.TranscriptSummary{RunID: t.RunID, FinishedAt: t.FinishedAt, State: t.State, Topic: t.Topic}
}

func sortNewestFirst(s []core.TranscriptSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].FinishedAt.Equal(s[j].FinishedAt) {
			return s[i].RunID < s[j].RunID
		}
		return s[i].FinishedAt.After(s[j].FinishedAt)
	})
}
