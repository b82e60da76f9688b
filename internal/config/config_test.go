package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filescope.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, ByteSize(5_000_000), cfg.MaxFileSize)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, ProviderOllama, cfg.Provider)
	assert.Contains(t, cfg.ExcludeExtensions, ".exe")
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, `
request_timeout = "15s"
max_retries = 4
offline_mode = true
provider = "LMStudio"
max_file_size = "10 MB"
exclude_extensions = ["TMP", ".Log", ""]
checkpoint_interval = "2s"
store_backend = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.True(t, cfg.OfflineMode)
	assert.Equal(t, ProviderLMStudio, cfg.Provider)
	assert.Equal(t, "http://localhost:1234", cfg.ClassifierURL())
	assert.Equal(t, ByteSize(10_000_000), cfg.MaxFileSize)
	assert.Equal(t, []string{".tmp", ".log"}, cfg.ExcludeExtensions)
	assert.Equal(t, 2*time.Second, cfg.CheckpointInterval)
	assert.Equal(t, BackendJSON, cfg.StoreBackend)

	// Untouched keys keep their defaults
	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, 24*time.Hour, cfg.ResumeMaxAge)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().RequestTimeout, cfg.RequestTimeout)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "request_timeout = = 3")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvRequestTimeout, "90")
	t.Setenv(EnvMaxRetries, "0")
	t.Setenv(EnvOffline, "true")
	t.Setenv(EnvMaxFileSize, "1MiB")
	t.Setenv(EnvModel, "llama3")
	t.Setenv(EnvDataDir, "/tmp/fs")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.True(t, cfg.OfflineMode)
	assert.Equal(t, ByteSize(1<<20), cfg.MaxFileSize)
	assert.Equal(t, "llama3", cfg.Model)
	assert.Equal(t, "/tmp/fs", cfg.DataDir)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv(EnvMaxRetries, "lots")

	_, err := Load("")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_retries", cfgErr.Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"base above max delay", func(c *Config) { c.RetryBaseDelay = time.Minute; c.RetryMaxDelay = time.Second }, "retry_max_delay"},
		{"unknown provider", func(c *Config) { c.Provider = "openai" }, "provider"},
		{"missing model", func(c *Config) { c.Model = "" }, "model"},
		{"zero max size", func(c *Config) { c.MaxFileSize = 0 }, "max_file_size"},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, "queue_size"},
		{"negative workers", func(c *Config) { c.Workers = -2 }, "workers"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "redis" }, "store_backend"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestOfflineModeDoesNotNeedModel(t *testing.T) {
	cfg := Default()
	cfg.OfflineMode = true
	cfg.Model = ""
	assert.NoError(t, cfg.Validate())
}

func TestWorkerCount(t *testing.T) {
	cfg := Default()
	cfg.Workers = 3
	assert.Equal(t, 3, cfg.WorkerCount())

	cfg.Workers = 0
	assert.LessOrEqual(t, cfg.WorkerCount(), 8)
	assert.GreaterOrEqual(t, cfg.WorkerCount(), 1)

	cfg.OfflineMode = true
	assert.LessOrEqual(t, cfg.WorkerCount(), 16)
}

func TestByteSize(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("5MB")))
	assert.Equal(t, ByteSize(5_000_000), b)
	assert.Equal(t, "5.0 MB", b.String())

	assert.Error(t, b.UnmarshalText([]byte("five")))
}

func TestResolveDataDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Default()
	dir, err := cfg.ResolveDataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".filescope"), dir)

	cfg.DataDir = "/var/lib/filescope"
	dir, err = cfg.ResolveDataDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/filescope", dir)
}

func TestReadBytesClampedToMaxSize(t *testing.T) {
	path := writeConfig(t, `
max_file_size = "1 KB"
max_read_bytes = "1 MB"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxFileSize, cfg.MaxReadBytes)
}
