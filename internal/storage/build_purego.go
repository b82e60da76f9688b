//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// This file is compiled when building without CGO or with the purego tag.
// It uses a pure Go SQLite implementation without the sqlite-vec extension.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// Driver used: modernc.org/sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// encodeVector serializes an embedding as little-endian float32s,
// the same layout sqlite-vec uses
func encodeVector(v []float32) ([]byte, error) {
	return serializeVector(v), nil
}

func vectorExtensionVersion(context.Context, *sql.DB) string {
	return ""
}
