package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/filescope-mcp/pkg/types"
)

// Backend persists the record store durably
type Backend interface {
	// Load reads the durable copy. A missing copy yields an empty snapshot;
	// an unreadable one yields a *CorruptionError.
	Load(ctx context.Context) (*Snapshot, error)

	// Save applies changes so that a crash mid-save leaves the previous durable copy intact
	Save(ctx context.Context, changes Changes) error

	// Reset moves a corrupt durable copy aside and starts a fresh one.
	// It returns where the corrupt copy was moved, if anywhere.
	Reset(ctx context.Context) (string, error)

	// Info describes the backend for status reporting
	Info() BackendInfo

	Close() error
}

// documentBackend is implemented by backends that rewrite the whole store on every save
type documentBackend interface {
	Backend
	wholeDocument()
}

// BackendInfo describes a backend
type BackendInfo struct {
	Kind            string `json:"kind"`
	Path            string `json:"path"`
	Driver          string `json:"driver,omitempty"`
	BuildMode       string `json:"build_mode,omitempty"`
	VectorExtension string `json:"vector_extension,omitempty"` // sqlite-vec version, empty if unavailable
}

// Snapshot is the durable state read by Backend.Load
type Snapshot struct {
	Records    map[string]*types.FileRecord
	Checkpoint *types.ScanCheckpoint
}

// Changes is the delta handed to Backend.Save
type Changes struct {
	Upserts []*types.FileRecord
	Deletes []string

	// Records holds every record; only populated for document backends
	Records map[string]*types.FileRecord

	// Checkpoint is the current scan checkpoint, nil when no scan is in progress
	Checkpoint *types.ScanCheckpoint
	// CheckpointReplaced means Checkpoint (or its absence) replaces the stored one wholesale
	CheckpointReplaced bool
	// CompletedAdded lists paths added to Checkpoint.Completed since the previous save
	CompletedAdded []string
}

// LoadReport summarizes what Load found
type LoadReport struct {
	Records    int
	Dropped    int  // Stored records that failed validation
	Resumable  bool // A scan checkpoint was found
	Warning    error
	LoadedFrom string
}

// Stats counts records by state
type Stats struct {
	Total          int                       `json:"total"`
	ByState        map[types.RecordState]int `json:"by_state"`
	WithEmbeddings int                       `json:"with_embeddings"`
}

// RecordStore is the durable mapping from path to FileRecord.
//
// All mutations go through a single writer (the scan pipeline); readers may run
// concurrently and always receive copies. Stored records are never modified in
// place: Put swaps in a new value, so a reader sees either the old or the new
// record, never a partial one.
type RecordStore struct {
	mu         sync.RWMutex
	records    map[string]*types.FileRecord
	dirty      map[string]struct{}
	deleted    map[string]struct{}
	checkpoint *types.ScanCheckpoint
	cpAdded    []string
	cpReplaced bool
	generation atomic.Uint64

	saveMu  sync.Mutex
	backend Backend
	logger  *slog.Logger
}

// New creates an empty store over backend. Call Load to read the durable copy.
func New(backend Backend, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		records: make(map[string]*types.FileRecord),
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
		backend: backend,
		logger:  logger.With("component", "storage"),
	}
}

// Load replaces the in-memory state with the durable copy.
// A corrupt durable copy is moved aside and the store starts empty; the
// condition is returned as LoadReport.Warning rather than as an error.
func (s *RecordStore) Load(ctx context.Context) (LoadReport, error) {
	report := LoadReport{LoadedFrom: s.backend.Info().Path}

	snap, err := s.backend.Load(ctx)
	var corrupt *CorruptionError
	switch {
	case errors.As(err, &corrupt):
		moved, rerr := s.backend.Reset(ctx)
		if rerr != nil {
			return report, fmt.Errorf("failed to reset corrupt store: %w", rerr)
		}
		corrupt.QuarantinedTo = moved
		s.logger.Warn("record store unreadable, starting empty",
			slog.String("path", corrupt.Path),
			slog.String("moved_to", moved),
			slog.Any("error", corrupt.Cause))
		report.Warning = corrupt
		snap = &Snapshot{}
	case err != nil:
		return report, fmt.Errorf("failed to load record store: %w", err)
	}

	records := make(map[string]*types.FileRecord, len(snap.Records))
	for path, rec := range snap.Records {
		if rec == nil {
			report.Dropped++
			continue
		}
		if rec.Path == "" {
			rec.Path = path
		}
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			report.Dropped++
			s.logger.Warn("dropping invalid stored record", slog.String("path", path), slog.Any("error", err))
			continue
		}
		records[rec.Path] = rec
	}

	s.mu.Lock()
	s.records = records
	s.dirty = make(map[string]struct{})
	s.deleted = make(map[string]struct{})
	s.checkpoint = snap.Checkpoint
	s.cpAdded = nil
	s.cpReplaced = false
	s.mu.Unlock()
	s.generation.Add(1)

	report.Records = len(records)
	report.Resumable = snap.Checkpoint != nil
	return report, nil
}

// Save persists every change since the previous save, together with the checkpoint
func (s *RecordStore) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	changes := Changes{
		Upserts:            make([]*types.FileRecord, 0, len(s.dirty)),
		Deletes:            make([]string, 0, len(s.deleted)),
		Checkpoint:         s.checkpoint.Clone(),
		CheckpointReplaced: s.cpReplaced,
		CompletedAdded:     s.cpAdded,
	}
	for path := range s.dirty {
		changes.Upserts = append(changes.Upserts, s.records[path])
	}
	for path := range s.deleted {
		changes.Deletes = append(changes.Deletes, path)
	}
	if _, ok := s.backend.(documentBackend); ok {
		changes.Records = maps.Clone(s.records)
	}
	dirty, deleted := s.dirty, s.deleted
	cpAdded, cpReplaced := s.cpAdded, s.cpReplaced
	s.dirty = make(map[string]struct{})
	s.deleted = make(map[string]struct{})
	s.cpAdded = nil
	s.cpReplaced = false
	s.mu.Unlock()

	slices.SortFunc(changes.Upserts, func(a, b *types.FileRecord) int { return cmpString(a.Path, b.Path) })
	slices.Sort(changes.Deletes)

	if err := s.backend.Save(ctx, changes); err != nil {
		s.restorePending(dirty, deleted, cpAdded, cpReplaced)
		return fmt.Errorf("failed to save record store: %w", err)
	}
	return nil
}

// restorePending re-marks changes from a failed save so the next save retries them
func (s *RecordStore) restorePending(dirty, deleted map[string]struct{}, cpAdded []string, cpReplaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range dirty {
		if _, gone := s.deleted[p]; !gone {
			s.dirty[p] = struct{}{}
		}
	}
	for p := range deleted {
		if _, back := s.dirty[p]; !back {
			s.deleted[p] = struct{}{}
		}
	}
	if !s.cpReplaced {
		s.cpAdded = append(cpAdded, s.cpAdded...)
	}
	s.cpReplaced = s.cpReplaced || cpReplaced
}

// Get returns a copy of the record for path
func (s *RecordStore) Get(path string) (*types.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put inserts or replaces the record for rec.Path
func (s *RecordStore) Put(rec *types.FileRecord) error {
	c := rec.Clone()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid record %q: %w", rec.Path, err)
	}

	s.mu.Lock()
	s.records[c.Path] = c
	s.dirty[c.Path] = struct{}{}
	delete(s.deleted, c.Path)
	s.mu.Unlock()
	s.generation.Add(1)
	return nil
}

// Delete removes the record for path. It reports whether a record existed.
func (s *RecordStore) Delete(path string) bool {
	s.mu.Lock()
	_, ok := s.records[path]
	if ok {
		delete(s.records, path)
		delete(s.dirty, path)
		s.deleted[path] = struct{}{}
	}
	s.mu.Unlock()
	if ok {
		s.generation.Add(1)
	}
	return ok
}

// ExistsUnchanged reports whether a record exists for id.Path with the same size and mtime
func (s *RecordStore) ExistsUnchanged(id types.FileIdentity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id.Path]
	return ok && rec.FileIdentity.Unchanged(id)
}

// All returns copies of every record, ordered by path
func (s *RecordStore) All() []*types.FileRecord {
	s.mu.RLock()
	out := make([]*types.FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *types.FileRecord) int { return cmpString(a.Path, b.Path) })
	return out
}

// Paths returns every stored path, sorted
func (s *RecordStore) Paths() []string {
	s.mu.RLock()
	paths := slices.Collect(maps.Keys(s.records))
	s.mu.RUnlock()
	slices.Sort(paths)
	return paths
}

// Len returns the number of records
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Generation changes whenever a record is added, replaced or removed
func (s *RecordStore) Generation() uint64 {
	return s.generation.Load()
}

// Stats counts records by state
func (s *RecordStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.records), ByState: make(map[types.RecordState]int)}
	for _, rec := range s.records {
		st.ByState[rec.State]++
		if rec.HasEmbedding() {
			st.WithEmbeddings++
		}
	}
	return st
}

// Checkpoint returns a copy of the in-progress scan checkpoint
func (s *RecordStore) Checkpoint() (*types.ScanCheckpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return nil, false
	}
	return s.checkpoint.Clone(), true
}

// SetCheckpoint replaces the scan checkpoint
func (s *RecordStore) SetCheckpoint(cp *types.ScanCheckpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = cp.Clone()
	s.cpAdded = nil
	s.cpReplaced = true
}

// MarkCompleted adds path to the checkpoint's completed set.
// It becomes durable with the next Save, together with the record it describes.
func (s *RecordStore) MarkCompleted(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil {
		return false
	}
	if !s.checkpoint.MarkCompleted(path, time.Now()) {
		return false
	}
	s.cpAdded = append(s.cpAdded, path)
	return true
}

// ClearCheckpoint removes the scan checkpoint
func (s *RecordStore) ClearCheckpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = nil
	s.cpAdded = nil
	s.cpReplaced = true
}

// Info describes the backend
func (s *RecordStore) Info() BackendInfo {
	return s.backend.Info()
}

// Close releases the backend. It does not save.
func (s *RecordStore) Close() error {
	return s.backend.Close()
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
