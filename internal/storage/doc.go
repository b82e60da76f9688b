// Package storage provides durable persistence for file records.
//
// A RecordStore keeps every FileRecord in memory, keyed by absolute path, and
// writes changes through a Backend:
//
//   - SQLiteBackend: one row per record in filescope.db (WAL journal).
//     Each Save is a single transaction.
//   - JSONBackend: the whole store as records.json, replaced atomically
//     (temp file, fsync, rename) on every Save.
//
// # Basic Usage
//
//	store, report, err := storage.Open(ctx, storage.KindSQLite, "~/.filescope", logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if report.Warning != nil {
//	    // The previous store was unreadable and has been moved aside
//	}
//
//	_ = store.Put(rec)
//	if err := store.Save(ctx); err != nil {
//	    return err
//	}
//
// # Scan Checkpoints
//
// The checkpoint of an in-flight scan is saved in the same write as the
// records it describes, so after a crash the completed set never names a
// path whose record was lost.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3 and registers
// the sqlite-vec extension:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
