package persona

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/agentduet/core"
)

// StyleStore persists conversation styles in a JSON file. There are no
// default styles.
type StyleStore struct {
	path   string
	mu     sync.RWMutex
	styles []core.Style
}

// NewStyleStore loads the styles at path. A missing file starts empty.
func NewStyleStore(path string) (*StyleStore, error) {
	styles, err := readList[core.Style](path)
	if err != nil {
		return nil, fmt.Errorf("load user styles: %w", err)
	}
	return &StyleStore{path: path, styles: styles}, nil
}

// All returns every style in insertion order.
func (s *StyleStore) All() []core.Style {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Style(nil), s.styles...)
}

// Get looks a style up by name.
func (s *StyleStore) Get(name string) (core.Style, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := styleIndex(s.styles, name); i >= 0 {
		return s.styles[i], nil
	}
	return core.Style{}, fmt.Errorf("style %q: %w", name, ErrNotFound)
}

// Add stores a new style.
func (s *StyleStore) Add(st core.Style) error {
	st.Name = strings.TrimSpace(st.Name)
	st.Prompt = strings.TrimSpace(st.Prompt)
	if st.Name == "" || st.Prompt == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if styleIndex(s.styles, st.Name) >= 0 {
		return fmt.Errorf("style %q: %w", st.Name, ErrDuplicateName)
	}
	return s.commit(append(append([]core.Style(nil), s.styles...), st))
}

// Delete removes a style.
func (s *StyleStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := styleIndex(s.styles, name)
	if i < 0 {
		return fmt.Errorf("style %q: %w", name, ErrNotFound)
	}
	return s.commit(append(append([]core.Style(nil), s.styles[:i]...), s.styles[i+1:]...))
}

// SaveUser replaces the stored styles and persists them. Blank entries are
// skipped and a repeated name keeps its first occurrence.
func (s *StyleStore) SaveUser(styles []core.Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]core.Style, 0, len(styles))
	for _, st := range styles {
		st.Name = strings.TrimSpace(st.Name)
		st.Prompt = strings.TrimSpace(st.Prompt)
		if st.Name == "" || st.Prompt == "" || styleIndex(next, st.Name) >= 0 {
			continue
		}
		next = append(next, st)
	}
	return s.commit(next)
}

// Export writes every style as a JSON backup.
func (s *StyleStore) Export(w io.Writer) error {
	return encodeList(w, s.All())
}

// Import adds every style of a backup whose name is not taken yet.
func (s *StyleStore) Import(r io.Reader) (int, error) {
	var incoming []core.Style
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode style backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]core.Style(nil), s.styles...)
	added := 0
	for _, st := range incoming {
		st.Name = strings.TrimSpace(st.Name)
		st.Prompt = strings.TrimSpace(st.Prompt)
		if st.Name == "" || st.Prompt == "" || styleIndex(next, st.Name) >= 0 {
			continue
		}
		next = append(next, st)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return added, nil
}

// Replace swaps every style for the entries of a backup and returns how many
// were kept.
func (s *StyleStore) Replace(r io.Reader) (int, error) {
	var incoming []core.Style
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode style backup: %w", err)
	}
	if err := s.SaveUser(incoming); err != nil {
		return 0, err
	}
	return len(s.All()), nil
}

func (s *StyleStore) commit(styles []core.Style) error {
	if err := writeList(s.path, styles); err != nil {
		return fmt.Errorf("save user styles: %w", err)
	}
	s.styles = styles
	return nil
}

func styleIndex(styles []core.Style, name string) int {
	for i, st := range styles {
		if st.Name == name {
			return i
		}
	}
	return -1
}
