package fees

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stateFile is the on-disk shape of the persisted fee state.
type stateFile struct {
	Venues map[string]*VenueFeeState `json:"venues"`
}

// Load replaces the in-memory state of configured venues with whatever was
// persisted at path. A missing file is not an error; the model keeps the
// state built from configuration.
func (m *Model) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("fees: read state: %w", err)
	}
	var f stateFile
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("fees: parse state: %w", err)
	}
	for venue, st := range f.Venues {
		// Only venues with a configured program are restored; stale entries
		// for venues removed from config are dropped.
		if _, ok := m.states[venue]; ok {
			m.states[venue] = st
		}
	}
	return nil
}

// Save persists the current state atomically (temp file + rename).
func (m *Model) Save(path string) error {
	b, err := json.MarshalIndent(stateFile{Venues: m.states}, "", "  ")
	if err != nil {
		return fmt.Errorf("fees: marshal state: %w", err)
	}
	return writeFileAtomic(path, b, 0o600)
}

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a crash never leaves a half-written state file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	_ = os.Chmod(path, perm)
	return nil
}
