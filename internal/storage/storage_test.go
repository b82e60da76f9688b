package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filescope-mcp/pkg/types"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(path string) *types.FileRecord {
	return &types.FileRecord{
		FileIdentity: types.FileIdentity{Path: path, Size: 128, ModTime: testTime},
		Category:     "Go source",
		Summary:      "Implements the thing",
		Keywords:     []string{"go", "thing"},
		State:        types.StateSuccess,
		Provider:     "ollama",
		ClassifiedAt: testTime.Add(time.Minute),
		ScannedAt:    testTime.Add(time.Minute),
	}
}

// backendCases runs fn against every backend kind
func backendCases(t *testing.T, fn func(t *testing.T, kind string)) {
	for _, kind := range []string{KindSQLite, KindJSON} {
		t.Run(kind, func(t *testing.T) {
			fn(t, kind)
		})
	}
}

func openTestStore(t *testing.T, kind, dir string) (*RecordStore, LoadReport) {
	t.Helper()
	store, report, err := Open(context.Background(), kind, dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, report
}

func TestRecordStorePutGet(t *testing.T) {
	store := New(NewJSONBackend(filepath.Join(t.TempDir(), JSONFile)), testLogger())

	rec := testRecord("/data/a.go")
	require.NoError(t, store.Put(rec))

	got, ok := store.Get("/data/a.go")
	require.True(t, ok)
	assert.Equal(t, "a.go", got.Name)
	assert.Equal(t, rec.Keywords, got.Keywords)

	// Callers get copies
	got.Keywords[0] = "changed"
	again, _ := store.Get("/data/a.go")
	assert.Equal(t, "go", again.Keywords[0])

	// Mutating the input after Put doesn't leak in
	rec.Summary = "mutated"
	again, _ = store.Get("/data/a.go")
	assert.Equal(t, "Implements the thing", again.Summary)

	_, ok = store.Get("/data/missing.go")
	assert.False(t, ok)
}

func TestRecordStorePutValidates(t *testing.T) {
	store := New(NewJSONBackend(filepath.Join(t.TempDir(), JSONFile)), testLogger())

	tests := []struct {
		name    string
		rec     *types.FileRecord
		wantErr error
	}{
		{"empty path", &types.FileRecord{State: types.StateSuccess}, types.ErrEmptyPath},
		{"relative path", testRecord("rel/a.go"), types.ErrRelativePath},
		{"bad state", func() *types.FileRecord { r := testRecord("/a.go"); r.State = "weird"; return r }(), types.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Put(tt.rec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestRecordStoreExistsUnchanged(t *testing.T) {
	store := New(NewJSONBackend(filepath.Join(t.TempDir(), JSONFile)), testLogger())
	require.NoError(t, store.Put(testRecord("/data/a.go")))

	id := types.FileIdentity{Path: "/data/a.go", Size: 128, ModTime: testTime}
	assert.True(t, store.ExistsUnchanged(id))

	// Same instant in another zone is unchanged
	id.ModTime = testTime.In(time.FixedZone("X", 3600))
	assert.True(t, store.ExistsUnchanged(id))

	id.Size = 129
	assert.False(t, store.ExistsUnchanged(id))

	id.Size = 128
	id.ModTime = testTime.Add(time.Nanosecond)
	assert.False(t, store.ExistsUnchanged(id))

	assert.False(t, store.ExistsUnchanged(types.FileIdentity{Path: "/data/b.go"}))
}

func TestRecordStoreGeneration(t *testing.T) {
	store := New(NewJSONBackend(filepath.Join(t.TempDir(), JSONFile)), testLogger())
	g0 := store.Generation()

	require.NoError(t, store.Put(testRecord("/a.go")))
	g1 := store.Generation()
	assert.Greater(t, g1, g0)

	assert.False(t, store.Delete("/missing.go"))
	assert.Equal(t, g1, store.Generation())

	assert.True(t, store.Delete("/a.go"))
	assert.Greater(t, store.Generation(), g1)
}

func TestRecordStoreAllSortedAndStats(t *testing.T) {
	store := New(NewJSONBackend(filepath.Join(t.TempDir(), JSONFile)), testLogger())

	b := testRecord("/b.go")
	b.Embedding = []float32{1, 0}
	b.EmbeddingModel = "m"
	c := testRecord("/c.bin")
	c.State = types.StateSkippedTooLarge
	require.NoError(t, store.Put(b))
	require.NoError(t, store.Put(c))
	require.NoError(t, store.Put(testRecord("/a.go")))

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, "/a.go", all[0].Path)
	assert.Equal(t, "/b.go", all[1].Path)
	assert.Equal(t, "/c.bin", all[2].Path)
	assert.Equal(t, []string{"/a.go", "/b.go", "/c.bin"}, store.Paths())

	st := store.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.ByState[types.StateSuccess])
	assert.Equal(t, 1, st.ByState[types.StateSkippedTooLarge])
	assert.Equal(t, 1, st.WithEmbeddings)
}

func TestRecordStoreRoundTrip(t *testing.T) {
	backendCases(t, func(t *testing.T, kind string) {
		dir := t.TempDir()
		ctx := context.Background()

		store, report := openTestStore(t, kind, dir)
		assert.Equal(t, 0, report.Records)
		assert.Nil(t, report.Warning)

		withVec := testRecord("/data/b.md")
		withVec.Embedding = []float32{0.25, -0.5, 1}
		withVec.EmbeddingModel = "nomic-embed-text"
		failed := testRecord("/data/c.txt")
		failed.State = types.StateFailed
		failed.Error = "permission denied"
		noKeywords := testRecord("/data/d.bin")
		noKeywords.Keywords = nil

		require.NoError(t, store.Put(testRecord("/data/a.go")))
		require.NoError(t, store.Put(withVec))
		require.NoError(t, store.Put(failed))
		require.NoError(t, store.Put(noKeywords))
		require.NoError(t, store.Save(ctx))
		require.NoError(t, store.Close())

		reopened, report := openTestStore(t, kind, dir)
		assert.Equal(t, 4, report.Records)
		assert.False(t, report.Resumable)

		want := store.All()
		got := reopened.All()
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i], got[i], want[i].Path)
		}

		empty, ok := reopened.Get("/data/d.bin")
		require.True(t, ok)
		assert.NotNil(t, empty.Keywords)
		assert.Empty(t, empty.Keywords)
	})
}

func TestRecordStoreSaveDeletes(t *testing.T) {
	backendCases(t, func(t *testing.T, kind string) {
		dir := t.TempDir()
		ctx := context.Background()

		store, _ := openTestStore(t, kind, dir)
		require.NoError(t, store.Put(testRecord("/a.go")))
		require.NoError(t, store.Put(testRecord("/b.go")))
		require.NoError(t, store.Save(ctx))

		assert.True(t, store.Delete("/a.go"))
		require.NoError(t, store.Save(ctx))
		require.NoError(t, store.Close())

		reopened, _ := openTestStore(t, kind, dir)
		assert.Equal(t, []string{"/b.go"}, reopened.Paths())
	})
}

func TestRecordStoreUnsavedChangesAreLost(t *testing.T) {
	backendCases(t, func(t *testing.T, kind string) {
		dir := t.TempDir()
		ctx := context.Background()

		store, _ := openTestStore(t, kind, dir)
		require.NoError(t, store.Put(testRecord("/a.go")))
		require.NoError(t, store.Save(ctx))
		require.NoError(t, store.Put(testRecord("/b.go")))
		require.NoError(t, store.Close())

		reopened, _ := openTestStore(t, kind, dir)
		assert.Equal(t, []string{"/a.go"}, reopened.Paths())
	})
}

func TestRecordStoreCheckpoint(t *testing.T) {
	backendCases(t, func(t *testing.T, kind string) {
		dir := t.TempDir()
		ctx := context.Background()

		store, _ := openTestStore(t, kind, dir)
		_, ok := store.Checkpoint()
		assert.False(t, ok)
		assert.False(t, store.MarkCompleted("/root/a.go"), "no checkpoint yet")

		cp := types.NewScanCheckpoint([]string{"/root"}, testTime)
		store.SetCheckpoint(cp)
		require.NoError(t, store.Put(testRecord("/root/a.go")))
		assert.True(t, store.MarkCompleted("/root/a.go"))
		assert.False(t, store.MarkCompleted("/root/a.go"))
		require.NoError(t, store.Save(ctx))

		// Incremental additions after the first save
		require.NoError(t, store.Put(testRecord("/root/b.go")))
		assert.True(t, store.MarkCompleted("/root/b.go"))
		require.NoError(t, store.Save(ctx))
		require.NoError(t, store.Close())

		reopened, report := openTestStore(t, kind, dir)
		assert.True(t, report.Resumable)
		got, ok := reopened.Checkpoint()
		require.True(t, ok)
		assert.Equal(t, cp.ScanID, got.ScanID)
		assert.Equal(t, []string{"/root"}, got.Roots)
		assert.True(t, got.IsCompleted("/root/a.go"))
		assert.True(t, got.IsCompleted("/root/b.go"))
		assert.Equal(t, 2, got.Cursor)
		assert.True(t, got.StartedAt.Equal(testTime))

		reopened.ClearCheckpoint()
		require.NoError(t, reopened.Save(ctx))
		require.NoError(t, reopened.Close())

		final, report := openTestStore(t, kind, dir)
		assert.False(t, report.Resumable)
		_, ok = final.Checkpoint()
		assert.False(t, ok)
		assert.Equal(t, 2, final.Len())
	})
}

func TestRecordStoreCheckpointReplaced(t *testing.T) {
	backendCases(t, func(t *testing.T, kind string) {
		dir := t.TempDir()
		ctx := context.Background()

		store, _ := openTestStore(t, kind, dir)
		store.SetCheckpoint(types.NewScanCheckpoint([]string{"/one"}, testTime))
		store.MarkCompleted("/one/a")
		require.NoError(t, store.Save(ctx))

		next := types.NewScanCheckpoint([]string{"/two"}, testTime)
		store.SetCheckpoint(next)
		require.NoError(t, store.Save(ctx))
		require.NoError(t, store.Close())

		reopened, _ := openTestStore(t, kind, dir)
		got, ok := reopened.Checkpoint()
		require.True(t, ok)
		assert.Equal(t, next.ScanID, got.ScanID)
		assert.False(t, got.IsCompleted("/one/a"))
	})
}

// failingBackend fails Save until healed
type failingBackend struct {
	Backend
	fail  bool
	saves []Changes
}

func (f *failingBackend) Save(ctx context.Context, changes Changes) error {
	if f.fail {
		return errors.New("disk full")
	}
	f.saves = append(f.saves, changes)
	return f.Backend.Save(ctx, changes)
}

func TestRecordStoreSaveFailureKeepsPending(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fb := &failingBackend{Backend: NewSQLiteBackend(filepath.Join(dir, SQLiteFile)), fail: true}
	store := New(fb, testLogger())
	_, err := store.Load(ctx)
	require.NoError(t, err)
	defer store.Close()

	store.SetCheckpoint(types.NewScanCheckpoint([]string{"/r"}, testTime))
	require.NoError(t, store.Put(testRecord("/r/a.go")))
	store.MarkCompleted("/r/a.go")

	err = store.Save(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	fb.fail = false
	require.NoError(t, store.Save(ctx))
	require.Len(t, fb.saves, 1)
	assert.Len(t, fb.saves[0].Upserts, 1)
	assert.True(t, fb.saves[0].CheckpointReplaced)

	// Nothing left to write
	require.NoError(t, store.Save(ctx))
	assert.Empty(t, fb.saves[1].Upserts)
	assert.False(t, fb.saves[1].CheckpointReplaced)
}
