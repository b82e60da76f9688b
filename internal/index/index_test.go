package index

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filescope-mcp/pkg/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNearestOrdering(t *testing.T) {
	ix := New()
	ix.Upsert("/a", []float32{1, 0}, t0)
	ix.Upsert("/b", []float32{0.7, 0.7}, t0)
	ix.Upsert("/c", []float32{0, 1}, t0)
	ix.Upsert("/d", []float32{-1, 0}, t0)

	got := ix.Nearest([]float32{1, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "/a", got[0].Path)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "/b", got[1].Path)
	assert.Equal(t, "/c", got[2].Path)
}

func TestNearestTieBreak(t *testing.T) {
	ix := New()
	ix.Upsert("/old", []float32{1, 1}, t0)
	ix.Upsert("/new", []float32{1, 1}, t0.Add(time.Hour))
	ix.Upsert("/z-same", []float32{1, 1}, t0)

	got := ix.Nearest([]float32{1, 1}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "/new", got[0].Path, "newer classification wins a tie")
	assert.Equal(t, "/old", got[1].Path, "then lexicographic path")
	assert.Equal(t, "/z-same", got[2].Path)
}

func TestNearestClampsK(t *testing.T) {
	ix := New()
	ix.Upsert("/a", []float32{1, 0}, t0)
	ix.Upsert("/b", []float32{0, 1}, t0)

	assert.Len(t, ix.Nearest([]float32{1, 0}, 100), 2)
	assert.Empty(t, ix.Nearest([]float32{1, 0}, 0))
	assert.Empty(t, ix.Nearest(nil, 5))
	assert.Empty(t, New().Nearest([]float32{1}, 5))
}

func TestNearestSkipsDimensionMismatch(t *testing.T) {
	ix := New()
	ix.Upsert("/two", []float32{1, 0}, t0)
	ix.Upsert("/three", []float32{1, 0, 0}, t0)

	got := ix.Nearest([]float32{1, 0, 0}, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "/three", got[0].Path)
}

func TestUpsertRemoveGeneration(t *testing.T) {
	ix := New()
	g := ix.Generation()

	vec := []float32{1, 2}
	ix.Upsert("/a", vec, t0)
	vec[0] = 100 // caller's slice is not retained
	assert.Greater(t, ix.Generation(), g)
	assert.Equal(t, 1, ix.Len())
	assert.InDelta(t, 1.0, ix.Nearest([]float32{1, 2}, 1)[0].Score, 1e-6)

	g = ix.Generation()
	ix.Remove("/missing")
	assert.Equal(t, g, ix.Generation())

	ix.Upsert("/a", nil, t0)
	assert.Equal(t, 0, ix.Len())
	assert.Greater(t, ix.Generation(), g)
}

func TestRebuild(t *testing.T) {
	ix := New()
	ix.Upsert("/stale", []float32{1}, t0)

	records := []*types.FileRecord{
		{FileIdentity: types.FileIdentity{Path: "/a"}, Embedding: []float32{1, 0}},
		{FileIdentity: types.FileIdentity{Path: "/b"}},
		{FileIdentity: types.FileIdentity{Path: "/c"}, Embedding: []float32{0, 1}},
	}
	ix.Rebuild(records)

	assert.Equal(t, 2, ix.Len())
	got := ix.Nearest([]float32{0, 1}, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "/c", got[0].Path)
}

func TestConcurrentAccess(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ix.Upsert(string(rune('a'+w)), []float32{float32(i), 1}, t0)
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = ix.Nearest([]float32{1, 1}, 3)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, ix.Len())
}
