package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
}

// walkAll runs a walk to completion and gathers its candidates and errors
func walkAll(t *testing.T, s *Scanner, roots []string, skip func(string) bool) ([]Candidate, []error) {
	t.Helper()
	cands, errs := s.Walk(context.Background(), roots, skip)
	var out []Candidate
	for c := range cands {
		out = append(out, c)
	}
	var es []error
	for e := range errs {
		es = append(es, e)
	}
	return out, es
}

func paths(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Path
	}
	return out
}

func testTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), 10)
	writeFile(t, filepath.Join(root, "a.go"), 10)
	writeFile(t, filepath.Join(root, "big.iso"), 200)
	writeFile(t, filepath.Join(root, "tool.EXE"), 10)
	writeFile(t, filepath.Join(root, "sub", "c.md"), 10)
	writeFile(t, filepath.Join(root, "node_modules", "dep.js"), 10)
	writeFile(t, filepath.Join(root, ".git", "HEAD"), 10)
	writeFile(t, filepath.Join(root, ".env"), 10)
	return root
}

var testFilter = Filter{
	MaxFileSize: 100,
	ExcludeDirs: []string{"node_modules"},
	ExcludeExts: []string{".exe"},
	SkipHidden:  true,
}

func TestWalkOrderAndDispositions(t *testing.T) {
	root := testTree(t)
	s := New(testFilter, testLogger())

	cands, errs := walkAll(t, s, []string{root}, nil)
	assert.Empty(t, errs)

	assert.Equal(t, []string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "b.txt"),
		filepath.Join(root, "big.iso"),
		filepath.Join(root, "sub", "c.md"),
		filepath.Join(root, "tool.EXE"),
	}, paths(cands))

	byName := map[string]Candidate{}
	for _, c := range cands {
		byName[c.Name] = c
	}
	assert.Equal(t, Eligible, byName["a.go"].Disposition)
	assert.Equal(t, ".go", byName["a.go"].Ext)
	assert.Equal(t, int64(10), byName["a.go"].Size)
	assert.False(t, byName["a.go"].ModTime.IsZero())
	assert.Equal(t, TooLarge, byName["big.iso"].Disposition)
	assert.Equal(t, Excluded, byName["tool.EXE"].Disposition)
	assert.Equal(t, ".exe", byName["tool.EXE"].Ext)
}

func TestWalkHiddenAllowed(t *testing.T) {
	root := testTree(t)
	f := testFilter
	f.SkipHidden = false
	s := New(f, testLogger())

	cands, _ := walkAll(t, s, []string{root}, nil)
	assert.Contains(t, paths(cands), filepath.Join(root, ".env"))
	assert.Contains(t, paths(cands), filepath.Join(root, ".git", "HEAD"))
}

func TestWalkSkipPredicate(t *testing.T) {
	root := testTree(t)
	s := New(testFilter, testLogger())
	done := map[string]bool{filepath.Join(root, "a.go"): true}

	cands, _ := walkAll(t, s, []string{root}, func(p string) bool { return done[p] })
	assert.NotContains(t, paths(cands), filepath.Join(root, "a.go"))
	assert.Len(t, cands, 4)
}

func TestWalkIgnoreFile(t *testing.T) {
	root := testTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFile), []byte("# comment\nsub/\n*.txt\n"), 0o644))
	s := New(testFilter, testLogger())

	cands, _ := walkAll(t, s, []string{root}, nil)
	assert.Equal(t, []string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "big.iso"),
		filepath.Join(root, "tool.EXE"),
	}, paths(cands))
}

func TestWalkMissingRootContinues(t *testing.T) {
	root := testTree(t)
	missing := filepath.Join(t.TempDir(), "gone")
	s := New(testFilter, testLogger())

	cands, errs := walkAll(t, s, []string{missing, root}, nil)
	require.Len(t, errs, 1)
	var rootErr *RootError
	require.True(t, errors.As(errs[0], &rootErr))
	assert.Equal(t, missing, rootErr.Root)
	assert.True(t, os.IsNotExist(rootErr.Err))
	assert.Len(t, cands, 5)
}

func TestWalkSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real.txt"), 5)
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(root, "nowhere"), filepath.Join(root, "broken.txt")))

	s := New(testFilter, testLogger())
	cands, errs := walkAll(t, s, []string{root}, nil)
	assert.Empty(t, errs)
	assert.Equal(t, []string{filepath.Join(root, "real.txt")}, paths(cands))
}

func TestWalkUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.txt"), 5)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "secret.txt"), 5)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	s := New(testFilter, testLogger())
	cands, errs := walkAll(t, s, []string{root}, nil)
	assert.Empty(t, errs)
	assert.Equal(t, []string{filepath.Join(root, "ok.txt")}, paths(cands))
}

func TestWalkCancel(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < candidateBuffer*3; i++ {
		writeFile(t, filepath.Join(root, strings.Repeat("f", 1)+string(rune('a'+i%26))+strings.Repeat("x", i/26)+".txt"), 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(testFilter, testLogger())
	cands, errs := s.Walk(ctx, []string{root}, nil)

	<-cands
	cancel()
	n := 1
	for range cands {
		n++
	}
	for range errs {
	}
	assert.Less(t, n, candidateBuffer*3)
}

func TestFilterClassify(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want Disposition
	}{
		{"a.go", 10, Eligible},
		{"a.go", 100, Eligible},
		{"a.go", 101, TooLarge},
		{"A.EXE", 1, Excluded},
		{"A.EXE", 1000, Excluded},
		{"noext", 0, Eligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, testFilter.Classify(tt.name, tt.size))
		})
	}
	assert.Equal(t, "too-large", TooLarge.String())
}
