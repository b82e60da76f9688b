package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filescope-mcp/internal/config"
	"github.com/dshills/filescope-mcp/internal/indexer"
	"github.com/dshills/filescope-mcp/internal/searcher"
	"github.com/dshills/filescope-mcp/pkg/types"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OfflineMode = true
	cfg.StoreBackend = backend
	cfg.DataDir = t.TempDir()
	cfg.Workers = 2
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"notes/meeting.txt": "weekly meeting notes",
		"code/main.go":      "package main",
		"report.pdf":        "%PDF-1.4 fake",
		"setup.exe":         "MZ binary",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestNewScanSearchReopen(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendJSON} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, backend)
			root := writeTree(t)

			a, err := New(ctx, cfg, discardLogger())
			require.NoError(t, err)
			assert.True(t, a.Gateway.Offline())

			report, err := a.Indexer.Scan(ctx, []string{root}, indexer.ScanOptions{})
			require.NoError(t, err)
			assert.Equal(t, types.ScanCompleted, report.State)
			assert.Equal(t, 3, report.Counts.Fallback+report.Counts.Classified)
			assert.Equal(t, 1, report.Counts.Skipped)

			rec, ok := a.Searcher.GetRecord(filepath.Join(root, "code", "main.go"))
			require.True(t, ok)
			assert.Equal(t, "Go source code", rec.Category)

			resp, err := a.Searcher.Search(ctx, searcher.Request{Query: ".pdf", Mode: searcher.SearchModeExtension})
			require.NoError(t, err)
			require.Len(t, resp.Results, 1)
			assert.Equal(t, "report.pdf", resp.Results[0].Record.Name)

			indexed := a.Index.Len()
			assert.Equal(t, 3, indexed)
			require.NoError(t, a.Close(ctx))

			reopened, err := New(ctx, cfg, discardLogger())
			require.NoError(t, err)
			defer func() { _ = reopened.Close(ctx) }()

			assert.Equal(t, 4, reopened.Store.Len())
			assert.Equal(t, indexed, reopened.Index.Len(), "index rebuilt from stored embeddings")
			assert.False(t, reopened.LoadReport.Resumable)

			second, err := reopened.Indexer.Scan(ctx, []string{root}, indexer.ScanOptions{})
			require.NoError(t, err)
			assert.Equal(t, 3, second.Counts.Unchanged)
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, config.BackendJSON)
	cfg.MaxRetries = -1

	_, err := New(context.Background(), cfg, discardLogger())
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_retries", cfgErr.Field)
}

func TestNewRemoteGateway(t *testing.T) {
	cfg := testConfig(t, config.BackendJSON)
	cfg.OfflineMode = false
	cfg.Provider = config.ProviderLMStudio

	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	assert.False(t, a.Gateway.Offline())
	st := a.Status()
	assert.Equal(t, "lmstudio/mistral", st.Classifier)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, config.BackendJSON), discardLogger())
	require.NoError(t, err)
	defer func() { _ = a.Close(ctx) }()

	st := a.Status()
	assert.Equal(t, "offline", st.Classifier)
	assert.Equal(t, "local/hashed-bow-384", st.Embedder)
	assert.Equal(t, types.ScanIdle, st.Scan.State)
	assert.Equal(t, 0, st.Records.Total)
	assert.False(t, st.Resumable)
	assert.Empty(t, st.LoadWarning)
	assert.Equal(t, config.BackendJSON, st.Store.Kind)
}

func TestCorruptStoreIsReported(t *testing.T) {
	cfg := testConfig(t, config.BackendJSON)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "records.json"), []byte("{not json"), 0o644))

	a, err := New(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	assert.Equal(t, 0, a.Store.Len())
	assert.NotEmpty(t, a.Status().LoadWarning)
}
