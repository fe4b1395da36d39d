package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrsteele09/tutorhub-session/session"
)

var _ session.Storage = (*Store)(nil)

// Store keeps the session record in a JSON file under session.StorageKey.
// Other keys in the file are preserved.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session state file path is required")
	}
	return &Store{path: path}, nil
}

func (s *Store) Load(_ context.Context) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	raw, ok := entries[session.StorageKey]
	if !ok {
		return nil, nil
	}
	var r session.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &r, nil
}

func (s *Store) Save(_ context.Context, record session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLocked()
	if err != nil {
		// An unreadable file is replaced rather than blocking every later write.
		entries = map[string]json.RawMessage{}
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	entries[session.StorageKey] = b
	return s.persistLocked(entries)
}

func (s *Store) readLocked() (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("read session state file: %w", err)
	}
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode session state file: %w", err)
	}
	return entries, nil
}

// persistLocked writes through a temp file and rename so a crash never leaves half a record.
func (s *Store) persistLocked(entries map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir session state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write session state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace session state file: %w", err)
	}
	return nil
}
