package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/logging"
)

var (
	// ErrNotFound is returned when no entry has the requested name.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when an entry with the same name exists.
	ErrDuplicateName = errors.New("name already exists")
	// ErrReadOnly is returned when a default persona would be changed.
	ErrReadOnly = errors.New("default personas are read-only")
	// ErrEmptyName is returned for blank names or prompts.
	ErrEmptyName = errors.New("name and prompt must not be empty")
)

// Options configures a persona Store.
type Options struct {
	// DefaultsPath points at a markdown defaults document. Empty selects the
	// built-in defaults; a missing file yields no defaults.
	DefaultsPath string

	// Logger reports skipped files. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Store holds the read-only default personas and the user personas persisted
// in a JSON file. It is safe for concurrent use.
type Store struct {
	path     string
	logger   logging.Logger
	mu       sync.RWMutex
	defaults []core.Persona
	users    []core.Persona
}

// NewStore loads defaults and the user personas at userPath. A missing user
// file starts an empty list; an unreadable one is an error so it is never
// overwritten.
func NewStore(userPath string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	defaults, err := loadDefaults(opts.DefaultsPath, opts.Logger)
	if err != nil {
		return nil, err
	}

	users, err := readList[core.Persona](userPath)
	if err != nil {
		return nil, fmt.Errorf("load user personas: %w", err)
	}
	for i := range users {
		users[i].IsDefault = false
	}

	return &Store{path: userPath, logger: opts.Logger, defaults: defaults, users: users}, nil
}

func loadDefaults(path string, logger logging.Logger) ([]core.Persona, error) {
	if path == "" {
		return BuiltinDefaults(), nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("Default personas file missing", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open default personas: %w", err)
	}
	defer func() { _ = f.Close() }()

	personas, err := ParseDefaults(f)
	if err != nil {
		return nil, fmt.Errorf("parse default personas: %w", err)
	}
	return personas, nil
}

// All returns defaults followed by user personas.
func (s *Store) All() []core.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Persona, 0, len(s.defaults)+len(s.users))
	out = append(out, s.defaults...)
	return append(out, s.users...)
}

// Users returns only the user personas.
func (s *Store) Users() []core.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Persona(nil), s.users...)
}

// Get looks a persona up by its display name. A default may also be found by
// its bare name without the prefix.
func (s *Store) Get(name string) (core.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.users, name); i >= 0 {
		return s.users[i], nil
	}
	if i := indexOf(s.defaults, name); i >= 0 {
		return s.defaults[i], nil
	}
	if i := indexOf(s.defaults, DefaultPrefix+name); i >= 0 {
		return s.defaults[i], nil
	}
	return core.Persona{}, fmt.Errorf("persona %q: %w", name, ErrNotFound)
}

// Add stores a new user persona and persists the list.
func (s *Store) Add(p core.Persona) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.IsDefault = false
	if p.Name == "" || p.Prompt == "" {
		return ErrEmptyName
	}
	if strings.HasPrefix(p.Name, DefaultPrefix) {
		return fmt.Errorf("persona %q: %w", p.Name, ErrReadOnly)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.users, p.Name) >= 0 || indexOf(s.defaults, p.Name) >= 0 {
		return fmt.Errorf("persona %q: %w", p.Name, ErrDuplicateName)
	}
	return s.commit(append(append([]core.Persona(nil), s.users...), p))
}

// Update replaces the prompt of a user persona.
func (s *Store) Update(name, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.defaults, name) >= 0 {
		return fmt.Errorf("persona %q: %w", name, ErrReadOnly)
	}
	i := indexOf(s.users, name)
	if i < 0 {
		return fmt.Errorf("persona %q: %w", name, ErrNotFound)
	}
	next := append([]core.Persona(nil), s.users...)
	next[i].Prompt = prompt
	return s.commit(next)
}

// Delete removes a user persona.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.defaults, name) >= 0 {
		return fmt.Errorf("persona %q: %w", name, ErrReadOnly)
	}
	i := indexOf(s.users, name)
	if i < 0 {
		return fmt.Errorf("persona %q: %w", name, ErrNotFound)
	}
	next := append(append([]core.Persona(nil), s.users[:i]...), s.users[i+1:]...)
	return s.commit(next)
}

// SaveUser replaces the user personas with personas and persists them.
// Defaults and entries carrying the default prefix are never written; blank
// entries are skipped and a repeated name keeps its first occurrence.
func (s *Store) SaveUser(personas []core.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]core.Persona, 0, len(personas))
	for _, p := range personas {
		p.Name = strings.TrimSpace(p.Name)
		p.Prompt = strings.TrimSpace(p.Prompt)
		if p.IsDefault || p.Name == "" || p.Prompt == "" || strings.HasPrefix(p.Name, DefaultPrefix) {
			continue
		}
		if indexOf(next, p.Name) >= 0 || indexOf(s.defaults, p.Name) >= 0 {
			continue
		}
		next = append(next, p)
	}
	return s.commit(next)
}

// Export writes the user personas as a JSON backup.
func (s *Store) Export(w io.Writer) error {
	return encodeList(w, s.Users())
}

// Import adds every persona of a JSON backup whose name is not taken yet and
// returns how many were added.
func (s *Store) Import(r io.Reader) (int, error) {
	var incoming []core.Persona
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode persona backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]core.Persona(nil), s.users...)
	added := 0
	for _, p := range incoming {
		p.Name = strings.TrimSpace(p.Name)
		p.Prompt = strings.TrimSpace(p.Prompt)
		p.IsDefault = false
		if p.Name == "" || p.Prompt == "" || strings.HasPrefix(p.Name, DefaultPrefix) {
			s.logger.Warn("Skipping invalid persona in backup", "name", p.Name)
			continue
		}
		if indexOf(next, p.Name) >= 0 || indexOf(s.defaults, p.Name) >= 0 {
			continue
		}
		next = append(next, p)
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

// Replace swaps the user personas for the entries of a JSON backup and
// returns how many were kept. Defaults stay untouched.
func (s *Store) Replace(r io.Reader) (int, error) {
	var incoming []core.Persona
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode persona backup: %w", err)
	}
	for i := range incoming {
		incoming[i].IsDefault = false
	}
	if err := s.SaveUser(incoming); err != nil {
		return 0, err
	}
	return len(s.Users()), nil
}

func (s *Store) commit(users []core.Persona) error {
	if err := writeList(s.path, users); err != nil {
		return fmt.Errorf("save user personas: %w", err)
	}
	s.users = users
	return nil
}

func indexOf(personas []core.Persona, name string) int {
	for i, p := range personas {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func readList[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []T
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// writeList replaces path atomically through a temporary file in the same
// directory.
func writeList[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := encodeList(tmp, items); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeList[T any](w io.Writer, items []T) error {
	if items == nil {
		items = []T{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(items)
}
