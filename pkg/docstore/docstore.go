// Package docstore holds the destination-store records the sync engine
// writes and the key-value side table used for conditional-fetch tags.
package docstore

// Record is one stored document. IDs are stable across runs so re-imports
// update entries in place instead of duplicating them.
type Record struct {
	ID       string         `json:"id"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	FilePath string         `json:"filePath"`
	Digest   string         `json:"digest"`
	Rendered string         `json:"rendered,omitempty"`
}

// Store is the destination-store contract. The engine relies on nothing
// beyond these operations, so a hosting framework can substitute its own
// document store for the file-backed one.
type Store interface {
	// Get returns the record with the given id, if present.
	Get(id string) (*Record, bool)
	// Set inserts or replaces a record keyed by its ID.
	Set(rec *Record) error
	// Delete removes the record with the given id. Deleting an absent id
	// is not an error.
	Delete(id string) error
	// Clear removes every record.
	Clear() error
}
