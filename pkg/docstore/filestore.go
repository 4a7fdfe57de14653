package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps records in one formatted JSON file and persists on every
// mutation. The mutex makes concurrent per-file writes from the engine safe
// without callers holding any lock.
type FileStore struct {
	path string

	mu   sync.Mutex
	recs map[string]*Record
}

// OpenFileStore loads the store at path, starting empty when the file does
// not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, recs: make(map[string]*Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	if err := json.Unmarshal(data, &s.recs); err != nil {
		return nil, fmt.Errorf("parsing store file %s: %w", path, err)
	}
	return s, nil
}

// Get returns a copy of the stored record so callers cannot mutate the
// store behind its back.
func (s *FileStore) Get(id string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Set inserts or replaces the record keyed by rec.ID.
func (s *FileStore) Set(rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.recs[rec.ID] = &cp
	return s.save()
}

// Delete removes the record with the given id, if present.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[id]; !ok {
		return nil
	}
	delete(s.recs, id)
	return s.save()
}

// Clear removes every record.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs = make(map[string]*Record)
	return s.save()
}

// Len reports the number of stored records.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return nil
}
