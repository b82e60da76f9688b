// Package types provides shared type definitions for the filescope server.
//
// # Core Types
//
// FileIdentity is the change-detection key for a file. Two scans that observe the
// same path with the same size and modification time treat the file as unchanged:
//
//	prev.Unchanged(types.FileIdentity{Path: p, Size: info.Size(), ModTime: info.ModTime()})
//
// FileRecord is the stored classification of one file. There is exactly one record
// per path; reclassifying a file replaces its record:
//
//	rec := &types.FileRecord{
//	    FileIdentity: id,
//	    Category:     "Go source code",
//	    Summary:      "HTTP handlers for the search API",
//	    Keywords:     []string{"http", "search"},
//	    State:        types.StateSuccess,
//	}
//
// # Record States
//
// State reports the outcome of the most recent attempt. StateFallback is a success
// variant produced by the offline classifier after the remote classifier failed.
// A StateFailed record may still carry the summary and embedding of an earlier
// successful run.
//
// # Checkpoints
//
// ScanCheckpoint tracks the paths a scan has durably completed so an interrupted
// scan can resume without reclassifying them.
package types
