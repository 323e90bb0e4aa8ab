package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/export"
)

var _ core.TranscriptStore = (*FileStore)(nil)

// FileTimeLayout is the timestamp prefix of archived file names.
const FileTimeLayout = "2006-01-02_15-04-05"

const shortIDLen = 8

// FileStore archives transcripts in a history folder. Each run produces
// "<finished>_<id8>.txt" with the plain text rendering and a matching ".json"
// file holding the full transcript. Only the JSON file is read back.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the history folder.
func (s *FileStore) Dir() string { return s.dir }

// Save writes both files for t.
func (s *FileStore) Save(t core.Transcript) error {
	if t.RunID == "" {
		return errors.New("transcript has no run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	base := filepath.Join(s.dir, BaseName(t))
	for _, f := range []export.Format{export.FormatText, export.FormatJSON} {
		var buf bytes.Buffer
		if err := export.Write(&buf, t, f); err != nil {
			return fmt.Errorf("render %s: %w", f, err)
		}
		if err := os.WriteFile(base+f.Extension(), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write history file: %w", err)
		}
	}
	return nil
}

// Get loads the transcript of runID.
func (s *FileStore) Get(runID string) (core.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.find(runID)
	if err != nil {
		return core.Transcript{}, err
	}
	return readTranscript(path)
}

// List returns summaries of every readable transcript, newest-first.
// Unreadable files are skipped.
func (s *FileStore) List() ([]core.TranscriptSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.jsonFiles()
	if err != nil {
		return nil, err
	}
	out := make([]core.TranscriptSummary, 0, len(paths))
	for _, p := range paths {
		t, err := readTranscript(p)
		if err != nil {
			continue
		}
		out = append(out, summarize(t))
	}
	sortNewestFirst(out)
	return out, nil
}

// Delete removes both files of runID.
func (s *FileStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.find(runID)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(path, export.FormatJSON.Extension())
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete history file: %w", err)
	}
	if err := os.Remove(base + export.FormatText.Extension()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete history file: %w", err)
	}
	return nil
}

// BaseName returns the archive file name of t without extension.
func BaseName(t core.Transcript) string {
	return t.FinishedAt.Format(FileTimeLayout) + "_" + shortID(t.RunID)
}

func (s *FileStore) find(runID string) (string, error) {
	if runID == "" {
		return "", core.ErrTranscriptNotFound
	}
	paths, err := s.jsonFiles()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), export.FormatJSON.Extension())
		if !strings.HasSuffix(name, "_"+shortID(runID)) {
			continue
		}
		t, err := readTranscript(p)
		if err == nil && t.RunID == runID {
			return p, nil
		}
	}
	return "", core.ErrTranscriptNotFound
}

func (s *FileStore) jsonFiles() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+export.FormatJSON.Extension()))
	if err != nil {
		return nil, fmt.Errorf("list history directory: %w", err)
	}
	return paths, nil
}

func shortID(runID string) string {
	if len(runID) > shortIDLen {
		return runID[:shortIDLen]
	}
	return runID
}

func readTranscript(path string) (core.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Transcript{}, fmt.Errorf("read history file: %w", err)
	}
	var t core.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return core.Transcript{}, fmt.Errorf("decode history file %s: %w", filepath.Base(path), err)
	}
	return t, nil
}
