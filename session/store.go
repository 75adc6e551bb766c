// Package session persists authenticated browser sessions between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"order-sla-extractor/internal/types"
)

// Store persists and restores a session
type Store interface {
	Load() (*types.Session, error)
	Save(s *types.Session) error
	Clear() error
}

// FileStore keeps the session as JSON on disk. Sessions older than TTL are
// discarded on load.
type FileStore struct {
	path  string
	ttl   time.Duration
	clock types.Clock
}

// NewFileStore creates a store at path; "~" is expanded to the home directory.
func NewFileStore(path string, ttl time.Duration, clock types.Clock) (*FileStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session path %s: %w", path, err)
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &FileStore{path: expanded, ttl: ttl, clock: clock}, nil
}

// Path returns the resolved file path
func (f *FileStore) Path() string { return f.path }

// Load returns the stored session, or nil when none exists or it is stale.
// A stale or unreadable file is removed.
func (f *FileStore) Load() (*types.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		_ = f.Clear()
		return nil, nil
	}
	s.TTL = f.ttl

	if s.CreatedAt.IsZero() || s.Expired(f.clock.Now()) {
		_ = f.Clear()
		return nil, nil
	}
	return &s, nil
}

// Save writes the session atomically
func (f *FileStore) Save(s *types.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the stored session. A missing file is not an error.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
