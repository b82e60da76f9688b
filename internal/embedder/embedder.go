package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrProviderFailed   = errors.New("embedding provider failed")
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrEmptyText        = errors.New("text cannot be empty")
	ErrBatchTooLarge    = errors.New("batch size exceeds limit")
)

// Embedding is a vector for one piece of text
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Cache key of the text that produced it
}

func (e *Embedding) clone() *Embedding {
	c := *e
	c.Vector = append(make([]float32, 0, len(e.Vector)), e.Vector...)
	return &c
}

// EmbeddingRequest asks for the embedding of one text
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest asks for embeddings of several texts
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse holds one embedding per requested text, in order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns text into fixed-length vectors. For a given text, repeated
// calls within one process return the same vector.
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts efficiently
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the vector length, or 0 if not known until the first call
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name recorded on stored embeddings
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache is an LRU of embeddings keyed by model and text
type Cache struct {
	cache  *lru.Cache[string, *Embedding]
	hits   atomic.Int64
	misses atomic.Int64
}

// DefaultCacheSize is used when NewCache is given a non-positive size
const DefaultCacheSize = 10000

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached embedding
func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return emb.clone(), true
}

// Set stores a copy of emb
func (c *Cache) Set(key string, emb *Embedding) {
	c.cache.Add(key, emb.clone())
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Stats returns the hit and miss counts
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// cacheKey scopes a text hash to a model so providers can share a cache
func cacheKey(model, text string) string {
	return ComputeHash(model + "\x00" + text)
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}

// batchFunc embeds texts that were not found in the cache
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// cachedBatch serves what it can from cache and calls fetch for the rest,
// in chunks of at most maxBatch texts
func cachedBatch(ctx context.Context, cache *Cache, provider, model string, maxBatch int, texts []string, fetch batchFunc) ([]*Embedding, error) {
	out := make([]*Embedding, len(texts))
	var missing []int
	for i, text := range texts {
		if cache != nil {
			if emb, ok := cache.Get(cacheKey(model, text)); ok {
				out[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += maxBatch {
		end := min(start+maxBatch, len(missing))
		idx := missing[start:end]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vectors, err := fetch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(batch), len(vectors))
		}

		for j, i := range idx {
			key := cacheKey(model, texts[i])
			emb := &Embedding{
				Vector:    vectors[j],
				Dimension: len(vectors[j]),
				Provider:  provider,
				Model:     model,
				Hash:      key,
			}
			if cache != nil {
				cache.Set(key, emb)
			}
			out[i] = emb
		}
	}
	return out, nil
}
