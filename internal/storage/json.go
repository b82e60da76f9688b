package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/filescope-mcp/pkg/types"
)

// JSONFile is the record document name inside the data directory
const JSONFile = "records.json"

// documentVersion is written into every document; older versions are still readable
const documentVersion = 1

// document is the on-disk layout of the JSON backend
type document struct {
	Version    int                          `json:"version"`
	SavedAt    time.Time                    `json:"saved_at"`
	Records    map[string]*types.FileRecord `json:"records"`
	Checkpoint *types.ScanCheckpoint        `json:"checkpoint,omitempty"`
}

// JSONBackend stores every record in a single JSON document.
// Saves write a temporary file in the same directory, sync it and rename it
// over the previous document.
type JSONBackend struct {
	path string
	mu   sync.Mutex
}

// NewJSONBackend creates a backend for the document at path
func NewJSONBackend(path string) *JSONBackend {
	return &JSONBackend{path: path}
}

func (b *JSONBackend) wholeDocument() {}

// Load reads the document. A missing file is an empty store.
func (b *JSONBackend) Load(_ context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{Records: map[string]*types.FileRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &CorruptionError{Path: b.path, Cause: errors.New("empty document")}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptionError{Path: b.path, Cause: err}
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("%s was written by a newer version (format %d)", b.path, doc.Version)
	}
	if doc.Records == nil {
		doc.Records = map[string]*types.FileRecord{}
	}
	return &Snapshot{Records: doc.Records, Checkpoint: doc.Checkpoint}, nil
}

// Save rewrites the whole document from changes.Records
func (b *JSONBackend) Save(_ context.Context, changes Changes) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc := document{
		Version:    documentVersion,
		SavedAt:    time.Now().UTC(),
		Records:    changes.Records,
		Checkpoint: changes.Checkpoint,
	}
	if doc.Records == nil {
		doc.Records = map[string]*types.FileRecord{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return writeFileAtomic(b.path, data)
}

// Reset moves an unreadable document aside
func (b *JSONBackend) Reset(_ context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return quarantine(b.path)
}

// Info describes the backend
func (b *JSONBackend) Info() BackendInfo {
	return BackendInfo{Kind: "json", Path: b.path}
}

// Close is a no-op; the document is only open during Load and Save
func (b *JSONBackend) Close() error {
	return nil
}

// writeFileAtomic replaces path with data. Readers and crashes see either
// the previous content or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true

	// Persist the rename itself
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
