package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dshills/filescope-mcp/pkg/types"
)

// SQLiteFile is the database file name inside the data directory
const SQLiteFile = "filescope.db"

// SQLiteBackend stores records in a SQLite database.
// Each Save runs in a single transaction, so a crash leaves the previous commit intact.
type SQLiteBackend struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteBackend creates a backend for the database at path.
// The database is opened by Load.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return db, nil
}

// errBadRow marks a row whose stored encoding cannot be decoded
var errBadRow = errors.New("undecodable row")

// isCorruption reports whether err means the file is not a usable database
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errBadRow) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not a database") ||
		strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "corrupt")
}

// open opens and migrates the database, classifying failures as corruption where possible.
// Caller holds b.mu.
func (b *SQLiteBackend) open(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := openDatabase(b.path)
	if err != nil {
		if isCorruption(err) {
			return &CorruptionError{Path: b.path, Cause: err}
		}
		return fmt.Errorf("failed to open database: %w", err)
	}

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		if isCorruption(err) {
			return &CorruptionError{Path: b.path, Cause: err}
		}
		return fmt.Errorf("failed to check database: %w", err)
	}
	if check != "ok" {
		_ = db.Close()
		return &CorruptionError{Path: b.path, Cause: errors.New(check)}
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		if isCorruption(err) {
			return &CorruptionError{Path: b.path, Cause: err}
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	b.db = db
	return nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Load reads every record and the checkpoint
func (b *SQLiteBackend) Load(ctx context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.open(ctx); err != nil {
		return nil, err
	}

	records, err := loadRecords(ctx, b.db)
	if err != nil {
		if isCorruption(err) {
			return nil, &CorruptionError{Path: b.path, Cause: err}
		}
		return nil, err
	}
	cp, err := loadCheckpoint(ctx, b.db)
	if err != nil {
		if isCorruption(err) {
			return nil, &CorruptionError{Path: b.path, Cause: err}
		}
		return nil, err
	}
	return &Snapshot{Records: records, Checkpoint: cp}, nil
}

func loadRecords(ctx context.Context, q querier) (map[string]*types.FileRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT path, name, size_bytes, mod_time, category, summary, keywords,
		       state, error, provider, classified_at, scanned_at,
		       embedding, embedding_dim, embedding_model
		FROM records
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]*types.FileRecord)
	for rows.Next() {
		var (
			rec                              types.FileRecord
			modTime, classifiedAt, scannedAt int64
			keywords, state                  string
			embedding                        []byte
			dim                              int
		)
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.Size, &modTime, &rec.Category, &rec.Summary,
			&keywords, &state, &rec.Error, &rec.Provider, &classifiedAt, &scannedAt,
			&embedding, &dim, &rec.EmbeddingModel); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.ModTime = fromUnixNano(modTime)
		rec.ClassifiedAt = fromUnixNano(classifiedAt)
		rec.ScannedAt = fromUnixNano(scannedAt)
		rec.State = types.RecordState(state)
		if err := json.Unmarshal([]byte(keywords), &rec.Keywords); err != nil {
			return nil, fmt.Errorf("%w: record %s: invalid keywords: %v", errBadRow, rec.Path, err)
		}
		if len(embedding) > 0 {
			vec, err := deserializeVector(embedding)
			if err != nil {
				return nil, fmt.Errorf("%w: record %s: %v", errBadRow, rec.Path, err)
			}
			if len(vec) != dim {
				return nil, fmt.Errorf("%w: record %s: embedding has %d dimensions, expected %d", errBadRow, rec.Path, len(vec), dim)
			}
			rec.Embedding = vec
		}
		records[rec.Path] = &rec
	}
	return records, rows.Err()
}

func loadCheckpoint(ctx context.Context, q querier) (*types.ScanCheckpoint, error) {
	var (
		cp                   types.ScanCheckpoint
		roots                string
		startedAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT scan_id, roots, started_at, updated_at, cursor FROM scan_checkpoint WHERE id = 1",
	).Scan(&cp.ScanID, &roots, &startedAt, &updatedAt, &cp.Cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(roots), &cp.Roots); err != nil {
		return nil, fmt.Errorf("%w: invalid checkpoint roots: %v", errBadRow, err)
	}
	cp.StartedAt = fromUnixNano(startedAt)
	cp.UpdatedAt = fromUnixNano(updatedAt)

	rows, err := q.QueryContext(ctx, "SELECT path FROM checkpoint_paths")
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cp.Completed = make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		cp.Completed[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	cp.Cursor = len(cp.Completed)
	return &cp, nil
}

// Save applies changes in one transaction
func (b *SQLiteBackend) Save(ctx context.Context, changes Changes) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.open(ctx); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range changes.Upserts {
		if err := upsertRecordWithQuerier(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, path := range changes.Deletes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", path, err)
		}
	}
	if err := saveCheckpointWithQuerier(ctx, tx, changes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func upsertRecordWithQuerier(ctx context.Context, q querier, rec *types.FileRecord) error {
	keywords, err := json.Marshal(rec.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords for %s: %w", rec.Path, err)
	}

	var embedding []byte
	if rec.HasEmbedding() {
		embedding, err = encodeVector(rec.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", rec.Path, err)
		}
	}

	query := `
		INSERT INTO records (path, name, size_bytes, mod_time, category, summary, keywords,
		                     state, error, provider, classified_at, scanned_at,
		                     embedding, embedding_dim, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			size_bytes = excluded.size_bytes,
			mod_time = excluded.mod_time,
			category = excluded.category,
			summary = excluded.summary,
			keywords = excluded.keywords,
			state = excluded.state,
			error = excluded.error,
			provider = excluded.provider,
			classified_at = excluded.classified_at,
			scanned_at = excluded.scanned_at,
			embedding = excluded.embedding,
			embedding_dim = excluded.embedding_dim,
			embedding_model = excluded.embedding_model
	`
	_, err = q.ExecContext(ctx, query,
		rec.Path, rec.Name, rec.Size, toUnixNano(rec.ModTime), rec.Category, rec.Summary, string(keywords),
		string(rec.State), rec.Error, rec.Provider, toUnixNano(rec.ClassifiedAt), toUnixNano(rec.ScannedAt),
		embedding, len(rec.Embedding), rec.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.Path, err)
	}
	return nil
}

func saveCheckpointWithQuerier(ctx context.Context, q querier, changes Changes) error {
	cp := changes.Checkpoint

	if changes.CheckpointReplaced {
		if _, err := q.ExecContext(ctx, "DELETE FROM checkpoint_paths"); err != nil {
			return fmt.Errorf("failed to clear checkpoint paths: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM scan_checkpoint"); err != nil {
			return fmt.Errorf("failed to clear checkpoint: %w", err)
		}
		if cp == nil {
			return nil
		}
	}
	if cp == nil {
		return nil
	}

	roots, err := json.Marshal(cp.Roots)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint roots: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO scan_checkpoint (id, scan_id, roots, started_at, updated_at, cursor)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scan_id = excluded.scan_id,
			roots = excluded.roots,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			cursor = excluded.cursor
	`, cp.ScanID, string(roots), toUnixNano(cp.StartedAt), toUnixNano(cp.UpdatedAt), len(cp.Completed))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	paths := changes.CompletedAdded
	if changes.CheckpointReplaced {
		paths = make([]string, 0, len(cp.Completed))
		for p := range cp.Completed {
			paths = append(paths, p)
		}
	}
	for _, p := range paths {
		if _, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO checkpoint_paths (path) VALUES (?)", p); err != nil {
			return fmt.Errorf("failed to save checkpoint path: %w", err)
		}
	}
	return nil
}

// Reset moves the database and its WAL files aside and creates a fresh one
func (b *SQLiteBackend) Reset(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		_ = b.db.Close()
		b.db = nil
	}

	moved, err := quarantine(b.path)
	if err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(b.path + suffix); err != nil && !os.IsNotExist(err) {
			return moved, fmt.Errorf("failed to remove %s: %w", b.path+suffix, err)
		}
	}

	if err := b.open(ctx); err != nil {
		return moved, err
	}
	return moved, nil
}

// Info describes the backend
func (b *SQLiteBackend) Info() BackendInfo {
	info := BackendInfo{
		Kind:      "sqlite",
		Path:      b.path,
		Driver:    DriverName,
		BuildMode: BuildMode,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil && VectorExtensionAvailable {
		info.VectorExtension = vectorExtensionVersion(context.Background(), b.db)
	}
	return info
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// quarantine renames path to path.corrupt-<unix>. A missing file is not an error.
func quarantine(path string) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, dest); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to move %s aside: %w", path, err)
	}
	return dest, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
