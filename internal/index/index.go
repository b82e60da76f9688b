// Package index keeps an in-memory copy of every stored embedding for
// nearest-neighbour search. It is a cache: Rebuild recreates it from the
// record store at any time.
package index

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/filescope-mcp/internal/storage"
	"github.com/dshills/filescope-mcp/pkg/types"
)

// Neighbor is one Nearest result
type Neighbor struct {
	Path  string
	Score float64 // Cosine similarity in [-1, 1]
}

type entry struct {
	vector       []float32
	classifiedAt time.Time
}

// Index maps paths to embeddings. Safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	entries    map[string]entry
	generation atomic.Uint64
}

// New creates an empty index
func New() *Index {
	return &Index{entries: make(map[string]entry)}
}

// Upsert sets the vector for path. An empty vector removes the entry.
func (ix *Index) Upsert(path string, vector []float32, classifiedAt time.Time) {
	if len(vector) == 0 {
		ix.Remove(path)
		return
	}
	v := slices.Clone(vector)

	ix.mu.Lock()
	ix.entries[path] = entry{vector: v, classifiedAt: classifiedAt}
	ix.mu.Unlock()
	ix.generation.Add(1)
}

// Remove deletes the entry for path
func (ix *Index) Remove(path string) {
	ix.mu.Lock()
	_, ok := ix.entries[path]
	delete(ix.entries, path)
	ix.mu.Unlock()
	if ok {
		ix.generation.Add(1)
	}
}

// Rebuild replaces the contents with the embeddings carried by records
func (ix *Index) Rebuild(records []*types.FileRecord) {
	entries := make(map[string]entry, len(records))
	for _, rec := range records {
		if rec.HasEmbedding() {
			entries[rec.Path] = entry{vector: slices.Clone(rec.Embedding), classifiedAt: rec.ClassifiedAt}
		}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
	ix.generation.Add(1)
}

// Len returns the number of indexed paths
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Generation changes whenever the contents change
func (ix *Index) Generation() uint64 {
	return ix.generation.Load()
}

// Nearest returns up to k paths ordered by descending cosine similarity to query.
// Ties go to the more recently classified record, then to the smaller path.
// Entries whose dimension differs from the query are ignored.
func (ix *Index) Nearest(query []float32, k int) []Neighbor {
	if k <= 0 || len(query) == 0 {
		return nil
	}

	type candidate struct {
		Neighbor
		classifiedAt time.Time
	}

	ix.mu.RLock()
	candidates := make([]candidate, 0, len(ix.entries))
	for path, e := range ix.entries {
		if len(e.vector) != len(query) {
			continue
		}
		candidates = append(candidates, candidate{
			Neighbor:     Neighbor{Path: path, Score: storage.CosineSimilarity(query, e.vector)},
			classifiedAt: e.classifiedAt,
		})
	}
	ix.mu.RUnlock()

	slices.SortFunc(candidates, func(a, b candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.classifiedAt.After(b.classifiedAt):
			return -1
		case a.classifiedAt.Before(b.classifiedAt):
			return 1
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})

	k = min(k, len(candidates))
	out := make([]Neighbor, k)
	for i := range out {
		out[i] = candidates[i].Neighbor
	}
	return out
}
