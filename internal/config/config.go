package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Provider names for the remote classifier
const (
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Environment variables that override file settings
const (
	EnvRequestTimeout    = "FILESCOPE_REQUEST_TIMEOUT"
	EnvMaxRetries        = "FILESCOPE_MAX_RETRIES"
	EnvOffline           = "FILESCOPE_OFFLINE"
	EnvProvider          = "FILESCOPE_PROVIDER"
	EnvOllamaURL         = "FILESCOPE_OLLAMA_URL"
	EnvLMStudioURL       = "FILESCOPE_LMSTUDIO_URL"
	EnvModel             = "FILESCOPE_MODEL"
	EnvMaxFileSize       = "FILESCOPE_MAX_FILE_SIZE"
	EnvEmbeddingProvider = "FILESCOPE_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "FILESCOPE_EMBEDDING_MODEL"
	EnvEmbeddingURL      = "FILESCOPE_EMBEDDING_URL"
	EnvWorkers           = "FILESCOPE_WORKERS"
	EnvStoreBackend      = "FILESCOPE_STORE_BACKEND"
	EnvDataDir           = "FILESCOPE_DATA_DIR"
	EnvLogLevel          = "FILESCOPE_LOG_LEVEL"
)

// DefaultDataDir is where the record store lives unless configured otherwise
const DefaultDataDir = "~/.filescope"

// ByteSize is a size in bytes that decodes from human strings such as "5MB" or "512 KiB"
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", string(text), err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.Bytes(uint64(b))
}

// Config holds every setting of a run. It is immutable once a scan starts.
type Config struct {
	// Classifier
	RequestTimeout    time.Duration `toml:"request_timeout"`
	MaxRetries        int           `toml:"max_retries"`
	RetryBaseDelay    time.Duration `toml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `toml:"retry_max_delay"`
	OfflineMode       bool          `toml:"offline_mode"`
	Provider          string        `toml:"provider"`
	OllamaURL         string        `toml:"ollama_url"`
	LMStudioURL       string        `toml:"lmstudio_url"`
	Model             string        `toml:"model"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	PromptChars       int           `toml:"prompt_chars"`

	// Scanner filters
	MaxFileSize       ByteSize `toml:"max_file_size"`
	MaxReadBytes      ByteSize `toml:"max_read_bytes"`
	ExcludeDirs       []string `toml:"exclude_dirs"`
	ExcludeExtensions []string `toml:"exclude_extensions"`
	SkipHidden        bool     `toml:"skip_hidden"`

	// Embeddings
	EmbeddingProvider string `toml:"embedding_provider"`
	EmbeddingModel    string `toml:"embedding_model"`
	EmbeddingURL      string `toml:"embedding_url"`

	// Pipeline
	Workers            int           `toml:"workers"`
	QueueSize          int           `toml:"queue_size"`
	CheckpointEvery    int           `toml:"checkpoint_every"`
	CheckpointInterval time.Duration `toml:"checkpoint_interval"`
	ResumeMaxAge       time.Duration `toml:"resume_max_age"`
	PruneMissing       bool          `toml:"prune_missing"`

	// Storage and logging
	StoreBackend string `toml:"store_backend"`
	DataDir      string `toml:"data_dir"`
	LogLevel     string `toml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		RequestTimeout:     60 * time.Second,
		MaxRetries:         2,
		RetryBaseDelay:     2 * time.Second,
		RetryMaxDelay:      30 * time.Second,
		Provider:           ProviderOllama,
		OllamaURL:          "http://localhost:11434",
		LMStudioURL:        "http://localhost:1234",
		Model:              "mistral",
		PromptChars:        1000,
		MaxFileSize:        5 * 1000 * 1000,
		MaxReadBytes:       64 * 1024,
		ExcludeDirs:        []string{"Windows", "Program Files", "Program Files (x86)", "$Recycle.Bin", "node_modules"},
		ExcludeExtensions:  []string{".exe", ".dll", ".sys", ".bin", ".dat"},
		SkipHidden:         true,
		EmbeddingProvider:  "local",
		EmbeddingModel:     "all-minilm",
		QueueSize:          100,
		CheckpointEvery:    20,
		CheckpointInterval: 5 * time.Second,
		ResumeMaxAge:       24 * time.Hour,
		PruneMissing:       true,
		StoreBackend:       BackendSQLite,
		DataDir:            DefaultDataDir,
		LogLevel:           "info",
	}
}

// Load builds a configuration from defaults, the TOML file at path (if it exists),
// and environment overrides, then validates it. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes the file at path over cfg. Keys absent from the file keep their current value.
func LoadTOML(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("ignoring unknown config keys", slog.String("file", path), slog.Any("keys", undecoded))
	}
	return nil
}

// ApplyEnvOverrides overlays FILESCOPE_* environment variables
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv(EnvRequestTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return &ConfigError{Field: "request_timeout", Reason: err.Error()}
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "max_retries", Reason: err.Error()}
		}
		c.MaxRetries = n
	}
	if v := os.Getenv(EnvOffline); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: "offline_mode", Reason: err.Error()}
		}
		c.OfflineMode = b
	}
	if v := os.Getenv(EnvMaxFileSize); v != "" {
		if err := c.MaxFileSize.UnmarshalText([]byte(v)); err != nil {
			return &ConfigError{Field: "max_file_size", Reason: err.Error()}
		}
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "workers", Reason: err.Error()}
		}
		c.Workers = n
	}

	strOverrides := map[string]*string{
		EnvProvider:          &c.Provider,
		EnvOllamaURL:         &c.OllamaURL,
		EnvLMStudioURL:       &c.LMStudioURL,
		EnvModel:             &c.Model,
		EnvEmbeddingProvider: &c.EmbeddingProvider,
		EnvEmbeddingModel:    &c.EmbeddingModel,
		EnvEmbeddingURL:      &c.EmbeddingURL,
		EnvStoreBackend:      &c.StoreBackend,
		EnvDataDir:           &c.DataDir,
		EnvLogLevel:          &c.LogLevel,
	}
	for env, dst := range strOverrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	return nil
}

// parseSeconds accepts either a Go duration ("90s") or a bare number of seconds ("90")
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.EmbeddingProvider = strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.ExcludeExtensions = NormalizeExtensions(c.ExcludeExtensions)
	if c.MaxReadBytes > c.MaxFileSize {
		c.MaxReadBytes = c.MaxFileSize
	}
}

// NormalizeExtensions lower-cases extensions and ensures a leading dot
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Validate checks every field and returns the first problem as a *ConfigError
func (c *Config) Validate() error {
	switch {
	case c.RequestTimeout <= 0:
		return &ConfigError{Field: "request_timeout", Reason: "must be positive"}
	case c.MaxRetries < 0:
		return &ConfigError{Field: "max_retries", Reason: "must be >= 0"}
	case c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0:
		return &ConfigError{Field: "retry_base_delay", Reason: "delays must be >= 0"}
	case c.RetryMaxDelay > 0 && c.RetryBaseDelay > c.RetryMaxDelay:
		return &ConfigError{Field: "retry_max_delay", Reason: "must be >= retry_base_delay"}
	case c.Provider != ProviderOllama && c.Provider != ProviderLMStudio:
		return &ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q (want %s or %s)", c.Provider, ProviderOllama, ProviderLMStudio)}
	case !c.OfflineMode && c.Model == "":
		return &ConfigError{Field: "model", Reason: "required unless offline_mode is set"}
	case c.RequestsPerSecond < 0:
		return &ConfigError{Field: "requests_per_second", Reason: "must be >= 0"}
	case c.MaxFileSize <= 0:
		return &ConfigError{Field: "max_file_size", Reason: "must be positive"}
	case c.MaxReadBytes <= 0:
		return &ConfigError{Field: "max_read_bytes", Reason: "must be positive"}
	case c.PromptChars <= 0:
		return &ConfigError{Field: "prompt_chars", Reason: "must be positive"}
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Reason: "must be >= 0"}
	case c.QueueSize <= 0:
		return &ConfigError{Field: "queue_size", Reason: "must be positive"}
	case c.CheckpointEvery <= 0:
		return &ConfigError{Field: "checkpoint_every", Reason: "must be positive"}
	case c.CheckpointInterval <= 0:
		return &ConfigError{Field: "checkpoint_interval", Reason: "must be positive"}
	case c.ResumeMaxAge < 0:
		return &ConfigError{Field: "resume_max_age", Reason: "must be >= 0"}
	case c.StoreBackend != BackendSQLite && c.StoreBackend != BackendJSON:
		return &ConfigError{Field: "store_backend", Reason: fmt.Sprintf("unknown backend %q", c.StoreBackend)}
	case c.EmbeddingProvider == "":
		return &ConfigError{Field: "embedding_provider", Reason: "required"}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Reason: err.Error()}
	}
	return nil
}

// ClassifierURL returns the base URL of the selected remote provider
func (c *Config) ClassifierURL() string {
	if c.Provider == ProviderLMStudio {
		return c.LMStudioURL
	}
	return c.OllamaURL
}

// WorkerCount resolves Workers, defaulting to min(NumCPU, 8), or min(NumCPU, 16) when offline
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	limit := 8
	if c.OfflineMode {
		limit = 16
	}
	return min(runtime.NumCPU(), limit)
}

// ResolveDataDir expands a leading ~ in DataDir
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "" {
		dir = DefaultDataDir
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return filepath.Abs(dir)
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}
