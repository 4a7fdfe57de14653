package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/docpull/docpull/pkg/project"
)

// StateFile is the change-detection state filename inside the state
// directory.
const StateFile = "state.json"

// State records what was last imported, per source. It is advisory: the
// check command compares commits against it, but a sync never trusts it
// for correctness.
type State struct {
	Imports     map[string]ImportRecord `json:"imports"`
	LastChecked time.Time               `json:"lastChecked"`
}

// ImportRecord is one source's last completed import.
type ImportRecord struct {
	Name           string    `json:"name"`
	LastCommit     string    `json:"lastCommit"`
	LastImportedAt time.Time `json:"lastImportedAt"`
	Ref            string    `json:"ref"`
}

// LoadState reads the state file, returning an empty state when the file
// does not exist yet.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{Imports: map[string]ImportRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}

	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if st.Imports == nil {
		st.Imports = map[string]ImportRecord{}
	}
	return st, nil
}

// Save writes the state atomically, formatted for human eyes.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	return project.WriteFileAtomic(path, append(data, '\n'))
}
