// Package runstate shares the supervised simulation's state between the
// serving process and one-shot CLI invocations through a small JSON file.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the content of the run-state file.
type State struct {
	ServePID      int       `json:"serve_pid"`
	SimulationPID int       `json:"simulation_pid"`
	Started       time.Time `json:"started"`
}

// Write replaces the file at path atomically.
func Write(path string, st State) error {
	if path == "" {
		return errors.New("run-state path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run-state directory: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run-state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Read loads the file at path. A missing file yields os.ErrNotExist.
func Read(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode run-state %s: %w", path, err)
	}
	return st, nil
}

// Remove deletes the file; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Probe reports the simulation as running while the run-state file names a
// live simulation process.
type Probe struct {
	Path string
}

// IsRunning reads the file on every call.
func (p Probe) IsRunning() bool {
	st, err := Read(p.Path)
	if err != nil || st.SimulationPID <= 0 {
		return false
	}
	return alive(st.SimulationPID)
}
