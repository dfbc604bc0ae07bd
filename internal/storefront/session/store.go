package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the session in a YAML file readable only by its owner.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if st.Token == "" {
		return State{}, ErrNoSession
	}
	return st, nil
}

func (f *FileStore) Save(st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type MemoryStore struct {
	mu  sync.Mutex
	st  State
	set bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return State{}, ErrNoSession
	}
	return m.st, nil
}

func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st, m.set = st, true
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st, m.set = State{}, false
	return nil
}
