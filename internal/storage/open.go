package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Backend kinds accepted by Open
const (
	KindSQLite = "sqlite"
	KindJSON   = "json"
)

// NewBackend creates the backend of the given kind rooted at dataDir
func NewBackend(kind, dataDir string) (Backend, error) {
	switch kind {
	case KindSQLite:
		return NewSQLiteBackend(filepath.Join(dataDir, SQLiteFile)), nil
	case KindJSON:
		return NewJSONBackend(filepath.Join(dataDir, JSONFile)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// Open creates a store of the given kind in dataDir and loads it
func Open(ctx context.Context, kind, dataDir string, logger *slog.Logger) (*RecordStore, LoadReport, error) {
	backend, err := NewBackend(kind, dataDir)
	if err != nil {
		return nil, LoadReport{}, err
	}

	store := New(backend, logger)
	report, err := store.Load(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, report, err
	}
	return store, report, nil
}
