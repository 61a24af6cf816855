package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists the authentication flag between restarts.
type Store interface {
	Load() (bool, error)
	Save(authenticated bool) error
	Clear() error
}

// stateVersion is bumped when the on-disk shape changes.
const stateVersion = "1"

// state matches the structure of the JSON session file.
type state struct {
	Version         string `json:"version"`
	IsAuthenticated bool   `json:"is_authenticated"`
	UpdatedAt       string `json:"updated_at"`
}

// FileStore keeps the flag in a JSON file. A missing file means not authenticated.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the flag from disk.
func (fs *FileStore) Load() (bool, error) {
	b, err := os.ReadFile(fs.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session file: %w", err)
	}

	var s state
	if err := json.Unmarshal(b, &s); err != nil {
		return false, fmt.Errorf("decode session file: %w", err)
	}
	return s.IsAuthenticated, nil
}

// Save writes the flag using an atomic write pattern.
// 1. Write to a temporary file in the same directory.
// 2. Sync to ensure data is on disk.
// 3. Rename temporary file to destination (atomic operation).
func (fs *FileStore) Save(authenticated bool) error {
	b, err := json.MarshalIndent(state{
		Version:         stateVersion,
		IsAuthenticated: authenticated,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.Path), filepath.Base(fs.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	// Close explicitly before renaming (essential on Windows)
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, fs.Path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Clear removes the session file.
func (fs *FileStore) Clear() error {
	if err := os.Remove(fs.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu            sync.Mutex
	authenticated bool
}

func (m *MemoryStore) Load() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated, nil
}

func (m *MemoryStore) Save(authenticated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = authenticated
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Save(false)
}
