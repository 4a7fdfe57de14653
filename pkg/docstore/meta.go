package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Meta is the flat key-value side table. Conditional-fetch tags are kept
// here, keyed per document id, separate from the records themselves so a
// hosting framework can swap either independently.
type Meta struct {
	path string

	mu   sync.Mutex
	vals map[string]string
}

// OpenMeta loads the side table at path, starting empty when the file does
// not exist yet.
func OpenMeta(path string) (*Meta, error) {
	m := &Meta{path: path, vals: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading meta file: %w", err)
	}
	if err := json.Unmarshal(data, &m.vals); err != nil {
		return nil, fmt.Errorf("parsing meta file %s: %w", path, err)
	}
	return m, nil
}

// Get returns the value stored under key.
func (m *Meta) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok
}

// Set stores value under key, overwriting any previous value.
func (m *Meta) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return m.save()
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Meta) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; !ok {
		return nil
	}
	delete(m.vals, key)
	return m.save()
}

func (m *Meta) save() error {
	data, err := json.MarshalIndent(m.vals, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating meta directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("writing meta file: %w", err)
	}
	return nil
}
