package types

import (
	"path/filepath"
	"strings"
	"time"
)

// RecordState is the outcome of the most recent classification attempt for a file
type RecordState string

const (
	StateSuccess         RecordState = "success"
	StateFallback        RecordState = "fallback" // classified offline after the remote classifier gave up
	StateFailed          RecordState = "failed"
	StateSkippedTooLarge RecordState = "skipped-too-large"
	StateSkippedExcluded RecordState = "skipped-excluded"
)

// Valid reports whether s is a known state
func (s RecordState) Valid() bool {
	switch s {
	case StateSuccess, StateFallback, StateFailed, StateSkippedTooLarge, StateSkippedExcluded:
		return true
	}
	return false
}

// Classified reports whether the record carries a classification from the current attempt
func (s RecordState) Classified() bool {
	return s == StateSuccess || s == StateFallback
}

// Skipped reports whether the file was filtered out without calling a classifier
func (s RecordState) Skipped() bool {
	return s == StateSkippedTooLarge || s == StateSkippedExcluded
}

// FileIdentity is the change-detection key for a file
type FileIdentity struct {
	Path    string    `json:"path"` // Absolute, cleaned
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Unchanged reports whether other describes the same path with the same size and mtime
func (id FileIdentity) Unchanged(other FileIdentity) bool {
	return id.Path == other.Path && id.Size == other.Size && id.ModTime.Equal(other.ModTime)
}

// FileRecord is the stored classification of one file
type FileRecord struct {
	FileIdentity

	Name     string      `json:"name"`
	Category string      `json:"category"`
	Summary  string      `json:"summary"`
	Keywords []string    `json:"keywords"`
	State    RecordState `json:"state"`
	Error    string      `json:"error,omitempty"`    // Failure of the current attempt, if any
	Provider string      `json:"provider,omitempty"` // Classifier that produced Category/Summary/Keywords

	ClassifiedAt time.Time `json:"classified_at"` // Last successful classification; zero if never
	ScannedAt    time.Time `json:"scanned_at"`

	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// Ext returns the lower-cased extension including the leading dot
func (r *FileRecord) Ext() string {
	return strings.ToLower(filepath.Ext(r.Path))
}

// HasEmbedding reports whether the record carries a vector
func (r *FileRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// Clone returns a deep copy of the record
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Keywords != nil {
		c.Keywords = append(make([]string, 0, len(r.Keywords)), r.Keywords...)
	}
	if r.Embedding != nil {
		c.Embedding = append(make([]float32, 0, len(r.Embedding)), r.Embedding...)
	}
	return &c
}

// Normalize puts the record into its canonical stored form.
// Times are converted to UTC, nil keywords become empty and an empty vector becomes nil.
func (r *FileRecord) Normalize() {
	if r.Path != "" {
		r.Path = filepath.Clean(r.Path)
	}
	if r.Name == "" && r.Path != "" {
		r.Name = filepath.Base(r.Path)
	}
	r.ModTime = utc(r.ModTime)
	r.ClassifiedAt = utc(r.ClassifiedAt)
	r.ScannedAt = utc(r.ScannedAt)
	if r.Keywords == nil {
		r.Keywords = []string{}
	}
	if len(r.Embedding) == 0 {
		r.Embedding = nil
		r.EmbeddingModel = ""
	}
	if r.State == "" {
		r.State = StateSuccess
	}
}

// Validate checks the record can be stored
func (r *FileRecord) Validate() error {
	if r.Path == "" {
		return ErrEmptyPath
	}
	if !filepath.IsAbs(r.Path) {
		return ErrRelativePath
	}
	if !r.State.Valid() {
		return ErrInvalidState
	}
	if r.Size < 0 {
		return ErrNegativeSize
	}
	return nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
