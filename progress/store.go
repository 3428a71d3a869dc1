// Copyright 2025 The gutty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/arakoodev/gutty/core"
)

// snapshot is the on-disk format: {"doneIds": {"<id>": true}}.
type snapshot struct {
	DoneIDs map[string]bool `json:"doneIds"`
}

// Store is the durable set of completed work-item IDs for one indexing run.
// It is safe for concurrent use; IDs are never removed except by Clear.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	done map[string]bool

	// flushMu orders snapshot capture with the file write so a later
	// snapshot never lands before an earlier one.
	flushMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for load and flush warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty store that persists to path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
		done:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "progress")
	return s
}

// Load reads the progress file at path. A missing file yields an empty
// store. A file that cannot be decoded is logged and also yields an empty
// store. Other read failures are returned.
func Load(path string, opts ...Option) (*Store, error) {
	s := New(path, opts...)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read progress file %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("ignoring unreadable progress file",
			"path", path, "error", fmt.Errorf("%w: %w", core.ErrCorruptProgress, err))
		return s, nil
	}

	for id, done := range snap.DoneIDs {
		if done {
			s.done[id] = true
		}
	}
	s.logger.Debug("loaded progress", "path", path, "done", len(s.done))
	return s, nil
}

// Path returns the file the store flushes to.
func (s *Store) Path() string {
	return s.path
}

// IsDone reports whether id has completed.
func (s *Store) IsDone(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done[id]
}

// MarkDone records id as completed.
func (s *Store) MarkDone(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[id] = true
}

// Len returns the number of completed IDs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done)
}

// Snapshot returns the completed IDs in sorted order.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.done))
	for id := range s.done {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Flush writes the full set to disk atomically: the snapshot goes to a
// temporary file in the target directory, which is then renamed over the
// target. The parent directory is created if missing.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	snap := snapshot{DoneIDs: make(map[string]bool, len(s.done))}
	for id := range s.done {
		snap.DoneIDs[id] = true
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	s.logger.Debug("flushed progress", "path", s.path, "done", len(snap.DoneIDs))
	return nil
}

// Clear forgets every completed ID and removes the progress file, making all
// items eligible for reprocessing.
func (s *Store) Clear() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	s.done = make(map[string]bool)
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove progress file %s: %w", s.path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp progress file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close progress: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace progress file: %w", err)
	}
	return nil
}
