// Package app assembles the record store, classifier, embedder, index, scanner,
// indexer and searcher from a configuration. The CLI and the MCP server both
// run on top of an App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/filescope-mcp/internal/classifier"
	"github.com/dshills/filescope-mcp/internal/config"
	"github.com/dshills/filescope-mcp/internal/embedder"
	"github.com/dshills/filescope-mcp/internal/index"
	"github.com/dshills/filescope-mcp/internal/indexer"
	"github.com/dshills/filescope-mcp/internal/scanner"
	"github.com/dshills/filescope-mcp/internal/searcher"
	"github.com/dshills/filescope-mcp/internal/storage"
)

// embeddingCacheSize bounds the embedder's LRU of recent texts
const embeddingCacheSize = 10000

// App owns every long-lived component of a process
type App struct {
	Config   *config.Config
	Store    *storage.RecordStore
	Gateway  *classifier.Gateway
	Embedder embedder.Embedder
	Index    *index.Index
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher

	// LoadReport describes what was found in the data directory at startup
	LoadReport storage.LoadReport

	logger *slog.Logger
}

// Status is a point-in-time summary of the whole application
type Status struct {
	Store       storage.BackendInfo `json:"store"`
	Records     storage.Stats       `json:"records"`
	Indexed     int                 `json:"indexed"` // Vectors in the embedding index
	Classifier  string              `json:"classifier"`
	Embedder    string              `json:"embedder"`
	Scan        indexer.Progress    `json:"scan"`
	Resumable   bool                `json:"resumable"`
	LoadWarning string              `json:"load_warning,omitempty"`
}

// New wires an App. The store is opened and loaded, and the embedding index is
// rebuilt from it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, report, err := storage.Open(ctx, cfg.StoreBackend, dataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	if report.Warning != nil {
		logger.Warn("record store reinitialised", slog.Any("error", report.Warning))
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.EmbeddingProvider,
		Model:     cfg.EmbeddingModel,
		BaseURL:   cfg.EmbeddingURL,
		CacheSize: embeddingCacheSize,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	idx := index.New()
	idx.Rebuild(store.All())

	scan := scanner.New(scanner.Filter{
		MaxFileSize: int64(cfg.MaxFileSize),
		ExcludeDirs: cfg.ExcludeDirs,
		ExcludeExts: cfg.ExcludeExtensions,
		SkipHidden:  cfg.SkipHidden,
	}, logger)

	a := &App{
		Config:     cfg,
		Store:      store,
		Gateway:    gateway,
		Embedder:   emb,
		Index:      idx,
		Indexer:    indexer.New(store, gateway, emb, idx, scan, indexer.OptionsFromConfig(cfg), logger),
		Searcher:   searcher.NewSearcher(store, idx, emb, searcher.DefaultCacheSize, logger),
		LoadReport: report,
		logger:     logger.With("component", "app"),
	}
	a.logger.Info("ready",
		slog.String("data_dir", dataDir),
		slog.String("backend", cfg.StoreBackend),
		slog.Int("records", store.Len()),
		slog.Int("indexed", idx.Len()),
		slog.Bool("offline", gateway.Offline()),
		slog.Bool("resumable", report.Resumable),
	)
	return a, nil
}

// newGateway builds the classifier gateway. Offline mode never constructs a remote client.
func newGateway(cfg *config.Config, logger *slog.Logger) (*classifier.Gateway, error) {
	policy := classifier.Policy{
		Offline:    cfg.OfflineMode,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Multiplier: 2,
		Timeout:    cfg.RequestTimeout,
	}

	var remote classifier.Classifier
	if !cfg.OfflineMode {
		r, err := classifier.NewRemote(classifier.RemoteConfig{
			Provider:          cfg.Provider,
			BaseURL:           cfg.ClassifierURL(),
			Model:             cfg.Model,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			PromptChars:       cfg.PromptChars,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize classifier: %w", err)
		}
		remote = r
	}
	return classifier.NewGateway(remote, classifier.NewOffline(), policy, logger), nil
}

// Status gathers the current state of every component
func (a *App) Status() Status {
	classifierName := classifier.ProviderOffline
	if !a.Gateway.Offline() {
		classifierName = a.Config.Provider + "/" + a.Config.Model
	}
	_, resumable := a.Store.Checkpoint()

	st := Status{
		Store:      a.Store.Info(),
		Records:    a.Store.Stats(),
		Indexed:    a.Index.Len(),
		Classifier: classifierName,
		Embedder:   a.Embedder.Provider() + "/" + a.Embedder.Model(),
		Scan:       a.Indexer.Progress(),
		Resumable:  resumable && !a.Indexer.Running(),
	}
	if a.LoadReport.Warning != nil {
		st.LoadWarning = a.LoadReport.Warning.Error()
	}
	return st
}

// Close cancels any running scan, waits for its final save and releases the store
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Indexer.CancelScan(); err == nil {
		if _, err := a.Indexer.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
