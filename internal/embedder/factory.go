package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvOpenAIAPIKey is consulted when Config.APIKey is empty
const EnvOpenAIAPIKey = "OPENAI_API_KEY"

// Config holds embedder configuration
type Config struct {
	Provider  string // ollama, openai or local
	Model     string // Empty selects the provider default
	BaseURL   string // Empty selects the provider default
	APIKey    string
	CacheSize int // Zero disables caching
	Timeout   time.Duration
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, timeout, cache)
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(cfg.BaseURL, cfg.Model, key, timeout, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
