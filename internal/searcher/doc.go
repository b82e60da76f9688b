// Package searcher answers queries over classified file records.
//
// Five modes are supported:
//   - Semantic (default): the query is embedded with the same embedder used
//     for summaries and ranked by cosine similarity through the index
//   - Keyword: case-insensitive substring scoring over name (0.3), category
//     (0.2), summary (0.3) and the first matching keyword (0.2)
//   - Hybrid: Reciprocal Rank Fusion (k=60) of the semantic and keyword lists
//   - Name: substring match on file names, then fuzzy matches at half weight
//   - Extension: exact extension match, newest first
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, idx, emb, 0, logger)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query: "quarterly tax documents",
//	    Limit: 10,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%.2f)\n", r.Rank, r.Record.Path, r.Score)
//	}
//
// Ties are broken by the most recent classification, then by path. An empty
// corpus yields an empty result, not an error.
//
// # Caching
//
// With UseCache set, responses are kept in an LRU keyed by the request. Each
// entry remembers the store and index generations it was computed at; any
// mutation of either makes it stale and the cache is purged on the next lookup.
package searcher
