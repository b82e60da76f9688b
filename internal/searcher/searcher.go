package searcher

import (
	"cmp"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sahilm/fuzzy"

	"github.com/dshills/filescope-mcp/internal/embedder"
	"github.com/dshills/filescope-mcp/internal/index"
	"github.com/dshills/filescope-mcp/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeSemantic  SearchMode = "semantic"  // Cosine similarity of embeddings
	SearchModeKeyword   SearchMode = "keyword"   // Substring match over name, category, summary and keywords
	SearchModeHybrid    SearchMode = "hybrid"    // Semantic + keyword with RRF
	SearchModeName      SearchMode = "name"      // File name substring, then fuzzy
	SearchModeExtension SearchMode = "extension" // Exact extension
)

const (
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultCacheSize = 1000
	rrfConstant      = 60.0
)

// Keyword score weights
const (
	weightName     = 0.3
	weightCategory = 0.2
	weightSummary  = 0.3
	weightKeyword  = 0.2
)

var (
	ErrEmptyQuery  = errors.New("query cannot be empty")
	ErrUnknownMode = errors.New("unsupported search mode")
)

// ParseMode maps a user supplied mode name to a SearchMode. Empty means semantic.
func ParseMode(s string) (SearchMode, error) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SearchModeSemantic, nil
	case SearchModeSemantic, SearchModeKeyword, SearchModeHybrid, SearchModeName, SearchModeExtension:
		return m, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownMode, s)
}

// Request contains parameters for a search operation
type Request struct {
	Query    string
	Limit    int
	Mode     SearchMode
	MinScore float64 // Results scoring below this are dropped
	UseCache bool
}

// Response contains search results and metadata
type Response struct {
	Results  []types.SearchResult `json:"results"`
	Total    int                  `json:"total"`
	Mode     SearchMode           `json:"mode"`
	Duration time.Duration        `json:"duration"`
	CacheHit bool                 `json:"cache_hit"`
}

// RecordSource is the read side of the record store
type RecordSource interface {
	Get(path string) (*types.FileRecord, bool)
	All() []*types.FileRecord
	Generation() uint64
}

// VectorIndex answers nearest-neighbour queries
type VectorIndex interface {
	Nearest(query []float32, k int) []index.Neighbor
	Len() int
	Generation() uint64
}

type cacheEntry struct {
	response   *Response
	generation [2]uint64
}

// Searcher runs queries against the record store and embedding index
type Searcher struct {
	records  RecordSource
	index    VectorIndex
	embedder embedder.Embedder
	logger   *slog.Logger

	cacheMu sync.Mutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

// NewSearcher creates a Searcher. cacheSize <= 0 selects DefaultCacheSize.
func NewSearcher(records RecordSource, idx VectorIndex, emb embedder.Embedder, cacheSize int, logger *slog.Logger) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		records:  records,
		index:    idx,
		embedder: emb,
		logger:   logger.With("component", "searcher"),
		cache:    cache,
	}
}

// GetRecord returns the stored record for path
func (s *Searcher) GetRecord(path string) (*types.FileRecord, bool) {
	return s.records.Get(path)
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	key := computeQueryHash(req)
	gen := s.generation()
	if req.UseCache {
		if cached := s.checkCache(key, gen); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var (
		ranked []rankedResult
		err    error
	)
	switch req.Mode {
	case SearchModeSemantic:
		ranked, err = s.semanticSearch(ctx, req.Query, req.Limit)
	case SearchModeKeyword:
		ranked = s.keywordSearch(req.Query)
	case SearchModeHybrid:
		ranked, err = s.hybridSearch(ctx, req)
	case SearchModeName:
		ranked = s.nameSearch(req.Query)
	case SearchModeExtension:
		ranked = s.extensionSearch(req.Query)
	}
	if err != nil {
		return nil, err
	}

	results := buildResults(ranked, req.Limit, req.MinScore)
	resp := &Response{
		Results:  results,
		Total:    len(results),
		Mode:     req.Mode,
		Duration: time.Since(start),
	}

	if req.UseCache {
		s.storeInCache(key, gen, resp)
	}

	s.logger.Debug("search",
		slog.String("mode", string(req.Mode)),
		slog.Int("results", resp.Total),
		slog.Duration("duration", resp.Duration))
	return resp, nil
}

// rankedResult is a record with its score for the current mode
type rankedResult struct {
	record *types.FileRecord
	score  float64
}

// semanticSearch embeds the query and ranks indexed records by cosine similarity
func (s *Searcher) semanticSearch(ctx context.Context, query string, limit int) ([]rankedResult, error) {
	if s.index.Len() == 0 {
		return nil, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// Over-fetch so records deleted since the lookup do not shrink the page
	neighbors := s.index.Nearest(emb.Vector, limit*2)
	out := make([]rankedResult, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := s.records.Get(n.Path)
		if !ok {
			continue
		}
		out = append(out, rankedResult{record: rec, score: n.Score})
	}
	return out, nil
}

// keywordSearch scores every record by case-insensitive substring matches
func (s *Searcher) keywordSearch(query string) []rankedResult {
	q := strings.ToLower(query)
	var out []rankedResult
	for _, rec := range s.records.All() {
		var score float64
		if strings.Contains(strings.ToLower(rec.Name), q) {
			score += weightName
		}
		if strings.Contains(strings.ToLower(rec.Category), q) {
			score += weightCategory
		}
		if strings.Contains(strings.ToLower(rec.Summary), q) {
			score += weightSummary
		}
		for _, kw := range rec.Keywords {
			if strings.Contains(strings.ToLower(kw), q) {
				score += weightKeyword
				break
			}
		}
		if score > 0 {
			out = append(out, rankedResult{record: rec, score: score})
		}
	}
	sortRankedResults(out)
	return out
}

// hybridSearch fuses semantic and keyword rankings with Reciprocal Rank Fusion.
// A semantic failure degrades to keyword results.
func (s *Searcher) hybridSearch(ctx context.Context, req Request) ([]rankedResult, error) {
	semantic, err := s.semanticSearch(ctx, req.Query, req.Limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("semantic half of hybrid search failed", slog.Any("error", err))
	}
	keyword := s.keywordSearch(req.Query)
	return applyRRF(semantic, keyword, rrfConstant), nil
}

// applyRRF combines ranked lists: RRF(d) = sum of 1/(k + rank(d))
func applyRRF(semantic, keyword []rankedResult, k float64) []rankedResult {
	scores := make(map[string]*rankedResult)
	add := func(list []rankedResult) {
		for rank, r := range list {
			e, ok := scores[r.record.Path]
			if !ok {
				e = &rankedResult{record: r.record}
				scores[r.record.Path] = e
			}
			e.score += 1.0 / (k + float64(rank+1))
		}
	}
	add(semantic)
	add(keyword)

	out := make([]rankedResult, 0, len(scores))
	for _, r := range scores {
		out = append(out, *r)
	}
	sortRankedResults(out)
	return out
}

// nameSearch prefers substring matches, scored higher the earlier they appear,
// and fills in with fuzzy matches at half weight
func (s *Searcher) nameSearch(query string) []rankedResult {
	q := strings.ToLower(query)
	all := s.records.All()

	var out []rankedResult
	var rest []*types.FileRecord
	for _, rec := range all {
		name := strings.ToLower(rec.Name)
		pos := strings.Index(name, q)
		if pos < 0 {
			rest = append(rest, rec)
			continue
		}
		score := 1.0 - float64(pos)/float64(len(name))*0.5
		out = append(out, rankedResult{record: rec, score: score})
	}

	for _, m := range fuzzy.FindFrom(query, nameSource(rest)) {
		rec := rest[m.Index]
		coverage := float64(len(m.MatchedIndexes)) / float64(max(len(rec.Name), 1))
		out = append(out, rankedResult{record: rec, score: 0.5 * min(coverage, 1)})
	}

	sortRankedResults(out)
	return out
}

// nameSource implements fuzzy.Source over record names
type nameSource []*types.FileRecord

func (n nameSource) String(i int) string { return n[i].Name }
func (n nameSource) Len() int            { return len(n) }

// extensionSearch returns every record with the given extension, newest first
func (s *Searcher) extensionSearch(query string) []rankedResult {
	ext := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	var out []rankedResult
	for _, rec := range s.records.All() {
		if rec.Ext() == ext {
			out = append(out, rankedResult{record: rec, score: 1.0})
		}
	}
	sortRankedResults(out)
	return out
}

func buildResults(ranked []rankedResult, limit int, minScore float64) []types.SearchResult {
	results := make([]types.SearchResult, 0, min(limit, len(ranked)))
	for _, r := range ranked {
		if len(results) == limit {
			break
		}
		if r.score < minScore {
			continue
		}
		results = append(results, types.SearchResult{
			Rank:   len(results) + 1,
			Score:  r.score,
			Record: r.record,
		})
	}
	return results
}

// sortRankedResults orders by score, then newest classification, then path
func sortRankedResults(results []rankedResult) {
	slices.SortStableFunc(results, func(a, b rankedResult) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := b.record.ClassifiedAt.Compare(a.record.ClassifiedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.record.Path, b.record.Path)
	})
}

func validateRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode
	return nil
}

func (s *Searcher) generation() [2]uint64 {
	return [2]uint64{s.records.Generation(), s.index.Generation()}
}

// checkCache returns a copy of a cached response computed at the same generation
func (s *Searcher) checkCache(key [32]byte, gen [2]uint64) *Response {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if entry.generation != gen {
		// Anything cached before a mutation is stale
		s.cache.Purge()
		return nil
	}
	return copyResponse(entry.response)
}

func (s *Searcher) storeInCache(key [32]byte, gen [2]uint64, resp *Response) {
	s.cacheMu.Lock()
	s.cache.Add(key, &cacheEntry{response: copyResponse(resp), generation: gen})
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Len()
}

// copyResponse deep-copies a response so cached records cannot be mutated by callers
func copyResponse(src *Response) *Response {
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = types.SearchResult{Rank: r.Rank, Score: r.Score, Record: r.Record.Clone()}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req Request) [32]byte {
	data := fmt.Sprintf("%s|%s|%d|%.6f", req.Query, req.Mode, req.Limit, req.MinScore)
	return sha256.Sum256([]byte(data))
}
