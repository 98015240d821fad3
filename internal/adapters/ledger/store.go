// Package ledger records target modification times in a flat JSON file.
//
// It backs the "recorded" target backend, whose targets exist once the job
// producing them has succeeded, and the simulated targets of dry runs.
package ledger

import (
	"encoding/json"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
)

// Backend is the target backend name served by the ledger.
const Backend = "recorded"

var _ ports.TargetRecorder = (*Store)(nil)

// Record is the persisted state of one target.
type Record struct {
	Backend string    `json:"backend,omitempty"`
	Mtime   time.Time `json:"mtime"`
}

// Store implements ports.TargetRecorder on top of a JSON file.
// An empty path keeps the records in memory only.
type Store struct {
	path    string
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore creates a Store backed by the file at the given path.
func NewStore(path string) (*Store, error) {
	s := &Store{records: make(map[string]Record)}
	if path == "" {
		return s, nil
	}
	s.path = filepath.Clean(path)
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore creates a Store that is never written to disk.
func NewMemoryStore() *Store {
	s, _ := NewStore("")
	return s
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.With(zerr.Wrap(err, "failed to read target ledger"), "path", s.path)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to unmarshal target ledger"), "path", s.path)
	}
	return nil
}

// save must be called with mu held.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal target ledger")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return zerr.Wrap(err, "failed to create directory for target ledger")
	}
	tmp := s.path + ".tmp"
	//nolint:gosec // Path is cleaned and provided by trusted caller
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return zerr.Wrap(err, "failed to write target ledger")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return zerr.Wrap(err, "failed to replace target ledger")
	}
	return nil
}

// Mtime implements ports.TargetStore.
func (s *Store) Mtime(ref domain.TargetRef) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ref.ID]
	return rec.Mtime, ok, nil
}

// BulkMtime implements ports.TargetStore.
func (s *Store) BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.TargetStat, len(refs))
	for _, ref := range refs {
		if rec, ok := s.records[ref.ID]; ok {
			out[ref.ID] = domain.TargetStat{Exists: true, Mtime: rec.Mtime}
		}
	}
	return out, nil
}

// Touch implements ports.TargetRecorder.
func (s *Store) Touch(mtime time.Time, refs ...domain.TargetRef) error {
	if len(refs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		s.records[ref.ID] = Record{Backend: ref.Backend, Mtime: mtime.UTC()}
	}
	return s.save()
}

// Forget removes the targets from the ledger.
func (s *Store) Forget(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return s.save()
}

// IDs returns the recorded target ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.records))
}
