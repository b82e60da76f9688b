package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	Rank  int     `json:"rank"`  // Position in result set (1-based)
	Score float64 `json:"score"` // Cosine similarity, keyword score or fused score depending on mode

	Record *FileRecord `json:"record"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Record == nil {
		return ErrInvalidResult
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Score < -1 || sr.Score > 1 {
		return ErrInvalidScore
	}
	return nil
}
