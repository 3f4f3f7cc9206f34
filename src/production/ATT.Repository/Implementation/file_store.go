package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

// FileIdentityStore keeps all keys in one JSON object on disk
type FileIdentityStore struct {
	path string
	mu   sync.Mutex
}

func NewFileIdentityStore(path string) (*FileIdentityStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileIdentityStore{path: path}, nil
}

func (s *FileIdentityStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", interfaces.ErrNotFound
	}
	return v, nil
}

func (s *FileIdentityStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	// write-then-rename so a crash never leaves a truncated file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace storage: %w", err)
	}
	return nil
}

// Ping reports a corrupt or unreadable storage file
func (s *FileIdentityStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}

func (s *FileIdentityStore) Close() error {
	return nil
}

func (s *FileIdentityStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read storage: %w", err)
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode storage %s: %w", s.path, err)
	}
	return values, nil
}
