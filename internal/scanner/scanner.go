// Package scanner enumerates candidate files under a set of roots.
package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/filescope-mcp/pkg/types"
)

// IgnoreFile is read from each root; each non-comment line is a glob matched
// against entry names and root-relative paths
const IgnoreFile = ".filescopeignore"

// candidateBuffer is the capacity of the candidate channel
const candidateBuffer = 64

// Disposition says what should happen to a candidate
type Disposition int

const (
	Eligible Disposition = iota
	TooLarge
	Excluded
)

func (d Disposition) String() string {
	switch d {
	case TooLarge:
		return "too-large"
	case Excluded:
		return "excluded"
	default:
		return "eligible"
	}
}

// Candidate is one file found by the walk
type Candidate struct {
	types.FileIdentity
	Name        string
	Ext         string // Lower-cased, with leading dot
	Disposition Disposition
}

// RootError reports a root that could not be walked
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("scan root %s: %v", e.Root, e.Err)
}

func (e *RootError) Unwrap() error {
	return e.Err
}

// Filter decides which entries are walked and how files are handled
type Filter struct {
	MaxFileSize int64
	ExcludeDirs []string // Directory names never descended into
	ExcludeExts []string // Lower-cased extensions with leading dot
	SkipHidden  bool     // Skip entries whose name starts with "."
}

// Classify returns the disposition of a file with the given name and size
func (f Filter) Classify(name string, size int64) Disposition {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range f.ExcludeExts {
		if ext == e {
			return Excluded
		}
	}
	if f.MaxFileSize > 0 && size > f.MaxFileSize {
		return TooLarge
	}
	return Eligible
}

func (f Filter) skipDir(name string) bool {
	if f.SkipHidden && isHidden(name) {
		return true
	}
	for _, d := range f.ExcludeDirs {
		if strings.EqualFold(name, d) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

// Scanner walks roots and emits candidates
type Scanner struct {
	filter Filter
	logger *slog.Logger
}

// New creates a scanner
func New(filter Filter, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{filter: filter, logger: logger.With("component", "scanner")}
}

// Filter returns the scanner's filter
func (s *Scanner) Filter() Filter {
	return s.filter
}

// Walk traverses roots in order, lexicographically within each directory, and
// sends candidates on the returned channel. Paths for which skip returns true
// are not emitted. Per-entry errors are logged and skipped; a root that cannot
// be walked is reported as a *RootError and the walk moves on. Both channels
// are closed when the walk ends or ctx is cancelled.
func (s *Scanner) Walk(ctx context.Context, roots []string, skip func(path string) bool) (<-chan Candidate, <-chan error) {
	out := make(chan Candidate, candidateBuffer)
	errs := make(chan error, len(roots))

	go func() {
		defer close(out)
		defer close(errs)

		for _, root := range roots {
			if ctx.Err() != nil {
				return
			}
			if err := s.walkRoot(ctx, root, skip, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- &RootError{Root: root, Err: err}
			}
		}
	}()

	return out, errs
}

func (s *Scanner) walkRoot(ctx context.Context, root string, skip func(string) bool, out chan<- Candidate) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	ignores := loadIgnorePatterns(absRoot, s.logger)

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == absRoot {
				return err
			}
			s.logger.Warn("skipping unreadable entry", slog.String("path", path), slog.Any("error", err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			rel, _ := filepath.Rel(absRoot, path)
			if s.filter.skipDir(name) || matchesIgnore(name, filepath.ToSlash(rel), ignores) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks and other non-regular files are never followed or classified
		if !d.Type().IsRegular() {
			return nil
		}
		if s.filter.SkipHidden && isHidden(name) {
			return nil
		}
		rel, _ := filepath.Rel(absRoot, path)
		if name == IgnoreFile || matchesIgnore(name, filepath.ToSlash(rel), ignores) {
			return nil
		}
		if skip != nil && skip(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping vanished entry", slog.String("path", path), slog.Any("error", err))
			return nil
		}

		c := Candidate{
			FileIdentity: types.FileIdentity{Path: path, Size: fi.Size(), ModTime: fi.ModTime().UTC()},
			Name:         name,
			Ext:          strings.ToLower(filepath.Ext(name)),
			Disposition:  s.filter.Classify(name, fi.Size()),
		}
		select {
		case out <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// loadIgnorePatterns reads IgnoreFile from root. A missing file means no patterns.
func loadIgnorePatterns(root string, logger *slog.Logger) []string {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := filepath.Match(line, ""); err != nil {
			logger.Warn("ignoring bad pattern", slog.String("pattern", line), slog.Any("error", err))
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns
}

// matchesIgnore checks if a name or root-relative path matches any ignore pattern
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if p == name || p == relPath {
			return true
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
	}
	return false
}
