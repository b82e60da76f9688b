package types

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ScanCheckpoint records the progress of an in-flight scan so it can be resumed.
// Completed holds every path whose outcome has been applied to the store; it only
// grows and is persisted in the same save as the records it describes.
type ScanCheckpoint struct {
	ScanID    string          `json:"scan_id"`
	Roots     []string        `json:"roots"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Completed map[string]bool `json:"completed"`
	Cursor    int             `json:"cursor"` // len(Completed); resume offset reported to callers
}

// NewScanCheckpoint starts a checkpoint for a fresh scan of roots
func NewScanCheckpoint(roots []string, now time.Time) *ScanCheckpoint {
	return &ScanCheckpoint{
		ScanID:    uuid.NewString(),
		Roots:     normalizeRoots(roots),
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Completed: make(map[string]bool),
	}
}

// MarkCompleted adds path to the completed set. It returns false if the path was already present.
func (c *ScanCheckpoint) MarkCompleted(path string, now time.Time) bool {
	if c.Completed == nil {
		c.Completed = make(map[string]bool)
	}
	if c.Completed[path] {
		return false
	}
	c.Completed[path] = true
	c.Cursor = len(c.Completed)
	c.UpdatedAt = now.UTC()
	return true
}

// IsCompleted reports whether path was already handled in this scan
func (c *ScanCheckpoint) IsCompleted(path string) bool {
	return c != nil && c.Completed[path]
}

// Matches reports whether the checkpoint was taken for the same set of roots
func (c *ScanCheckpoint) Matches(roots []string) bool {
	if c == nil {
		return false
	}
	return slices.Equal(normalizeRoots(c.Roots), normalizeRoots(roots))
}

// Expired reports whether the checkpoint is older than maxAge. A zero maxAge never expires.
func (c *ScanCheckpoint) Expired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(c.UpdatedAt) > maxAge
}

// Clone returns a deep copy
func (c *ScanCheckpoint) Clone() *ScanCheckpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Roots = slices.Clone(c.Roots)
	out.Completed = make(map[string]bool, len(c.Completed))
	for p := range c.Completed {
		out.Completed[p] = true
	}
	return &out
}

func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		out = append(out, filepath.Clean(r))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
