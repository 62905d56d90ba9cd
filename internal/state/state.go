// SPDX-License-Identifier: MIT
// Package state persists the watcher's last published snapshot so other
// processes can read it and find the running watcher.
package state

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/skaphos/repomonitor/internal/model"
)

// State is the on-disk record written by a running watcher.
type State struct {
	// PID is the watcher process id, or 0 once the watcher has exited.
	PID       int            `yaml:"pid"`
	StartedAt time.Time      `yaml:"started_at,omitempty"`
	UpdatedAt time.Time      `yaml:"updated_at,omitempty"`
	Snapshot  model.Snapshot `yaml:"snapshot"`
}

// Load reads a state file from the given path.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save writes the state to the given path. Readers never observe a
// partially written file.
func Save(st *State, path string) error {
	if st == nil {
		return errors.New("state is nil")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// FindRepo returns the result whose repository id, path, or one of whose
// projects equals key, or nil. Paths are compared cleaned.
func (s *State) FindRepo(key string) *model.RepoResult {
	if key == "" {
		return nil
	}
	key = filepath.Clean(key)
	for i := range s.Snapshot.Repos {
		res := &s.Snapshot.Repos[i]
		if filepath.Clean(res.RepoID) == key || filepath.Clean(res.Path) == key {
			return res
		}
		for _, project := range res.Projects {
			if filepath.Clean(project) == key {
				return res
			}
		}
	}
	return nil
}

// Stale reports whether the state has not been updated within maxAge.
func (s *State) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return s.UpdatedAt.IsZero() || now.Sub(s.UpdatedAt) > maxAge
}

// Writer is a status listener that saves every published snapshot.
type Writer struct {
	path string

	mu    sync.Mutex
	state State
	now   func() time.Time
}

func NewWriter(path string, pid int) *Writer {
	w := &Writer{path: path, now: time.Now}
	w.state = State{PID: pid, StartedAt: w.now()}
	return w
}

func (w *Writer) Path() string { return w.path }

// StatusChanged records the snapshot and saves the state file.
func (w *Writer) StatusChanged(s model.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Snapshot = s
	w.state.UpdatedAt = w.now()
	return Save(&w.state, w.path)
}

// Release marks the watcher as exited, keeping the last snapshot.
func (w *Writer) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.PID = 0
	w.state.UpdatedAt = w.now()
	return Save(&w.state, w.path)
}
