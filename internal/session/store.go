package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenStore persists the raw token between invocations.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileStore keeps the token in a 0600 JSON file.
type FileStore struct {
	path string
}

var _ TokenStore = (*FileStore)(nil)

type storedToken struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns "" without error when nothing is stored.
func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return st.Token, nil
}

func (s *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(storedToken{Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// MemoryStore keeps the token in memory; used by tests and the dev backend.
type MemoryStore struct {
	token string
}

var _ TokenStore = (*MemoryStore)(nil)

func (s *MemoryStore) Load() (string, error) { return s.token, nil }
func (s *MemoryStore) Save(token string) error {
	s.token = token
	return nil
}
func (s *MemoryStore) Clear() error {
	s.token = ""
	return nil
}
