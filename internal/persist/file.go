// Package persist stores whole-state snapshots. The hub serializes its state
// as one JSON document; stores here only move opaque bytes.
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the latest snapshot in a single JSON file. Intended for
// local development and single-node deployments; use PostgresStore when the
// snapshot must survive the host.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed snapshot store at path, creating the
// parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("persist: create directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Save writes the snapshot through a temp file and rename, so a crash mid
// write never leaves a truncated snapshot behind.
func (s *FileStore) Save(_ context.Context, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, snapshot, 0o644); err != nil {
		return fmt.Errorf("persist: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("persist: commit snapshot: %w", err)
	}
	return nil
}

// Load reads the latest snapshot. The second return is false when no
// snapshot has been saved yet.
func (s *FileStore) Load(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: read snapshot: %w", err)
	}
	return data, true, nil
}
