package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dshills/filescope-mcp/internal/retry"
)

// Provider configuration
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultOllamaURL = "http://localhost:11434"
	DefaultOpenAIURL = "https://api.openai.com"

	// Default models
	DefaultOllamaModel = "all-minilm"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
)

// DefaultRetryConfig returns the backoff used for embedding API calls
func DefaultRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries: MaxRetries,
		BaseDelay:  InitialBackoff,
		MaxDelay:   MaxBackoff,
		Multiplier: BackoffMultiplier,
	}
}

// apiError is a non-200 response
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

// retryable treats client errors as permanent and everything else as transient
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusTooManyRequests || ae.Status >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// httpClient posts JSON with retries
type httpClient struct {
	client *http.Client
	retry  retry.Config
	apiKey string
}

func (h *httpClient) postJSON(ctx context.Context, url string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, attempts, err := retry.Do(ctx, h.retry, retryable, func() (struct{}, error) {
		return struct{}{}, h.once(ctx, url, body, respBody)
	})
	if err != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, attempts, err)
	}
	return nil
}

func (h *httpClient) once(ctx context.Context, url string, body []byte, respBody interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// OllamaProvider implements Embedder using Ollama's /api/embed endpoint
type OllamaProvider struct {
	baseURL   string
	model     string
	http      *httpClient
	cache     *Cache
	dimension atomic.Int64
}

// NewOllamaProvider creates an Ollama embedder
func NewOllamaProvider(baseURL, model string, timeout time.Duration, cache *Cache) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http: &httpClient{
			client: &http.Client{Timeout: timeout},
			retry:  DefaultRetryConfig(),
		},
		cache: cache,
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := cachedBatch(ctx, o.cache, ProviderOllama, o.model, MaxBatchSize, req.Texts, o.callAPI)
	if err != nil {
		return nil, err
	}
	o.dimension.Store(int64(embeddings[0].Dimension))

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      o.model,
	}, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": o.model,
		"input": texts,
	}
	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.http.postJSON(ctx, o.baseURL+"/api/embed", reqBody, &apiResp); err != nil {
		return nil, err
	}
	return apiResp.Embeddings, nil
}

func (o *OllamaProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.http.client.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder against any OpenAI-compatible
// /v1/embeddings endpoint, including LM Studio's local server
type OpenAIProvider struct {
	baseURL   string
	model     string
	http      *httpClient
	cache     *Cache
	dimension atomic.Int64
}

// NewOpenAIProvider creates an OpenAI-compatible embedder. The API key is
// optional for local servers.
func NewOpenAIProvider(baseURL, model, apiKey string, timeout time.Duration, cache *Cache) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http: &httpClient{
			client: &http.Client{Timeout: timeout},
			retry:  DefaultRetryConfig(),
			apiKey: apiKey,
		},
		cache: cache,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := cachedBatch(ctx, o.cache, ProviderOpenAI, o.model, MaxBatchSize, req.Texts, o.callAPI)
	if err != nil {
		return nil, err
	}
	o.dimension.Store(int64(embeddings[0].Dimension))

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      o.model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": o.model,
	}
	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := o.http.postJSON(ctx, o.baseURL+"/v1/embeddings", reqBody, &apiResp); err != nil {
		return nil, err
	}

	// Entries may arrive out of order; Index is authoritative
	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding %d", ErrProviderFailed, i)
		}
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.http.client.CloseIdleConnections()
	return nil
}
