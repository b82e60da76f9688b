package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/filescope-mcp/internal/app"
	"github.com/dshills/filescope-mcp/internal/config"
)

// defaultConfigName is looked up in the data directory when --config is not given
const defaultConfigName = "config.toml"

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configPath string
	dataDir    string
	backend    string
	offline    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "filescope",
		Short: "Classify files with a local LLM and search them by meaning",
		Long: `filescope walks directories, classifies every eligible file through a local
language model (Ollama or LM Studio) or an offline extension table, and keeps a
searchable record of each file's category, summary and keywords.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default <data-dir>/config.toml)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory holding the record store (default ~/.filescope)")
	flags.StringVar(&opts.backend, "backend", "", "record store backend: sqlite or json")
	flags.BoolVar(&opts.offline, "offline", false, "classify by file extension only, never calling the LLM")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newScanCmd(opts),
		newSearchCmd(opts),
		newGetCmd(opts),
		newStatusCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig resolves the configuration: defaults, config file, environment, then flags
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		base := config.Default()
		if o.dataDir != "" {
			base.DataDir = o.dataDir
		}
		dir, err := base.ResolveDataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, defaultConfigName)
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("backend") {
		cfg.StoreBackend = o.backend
	}
	if flags.Changed("offline") {
		cfg.OfflineMode = o.offline
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes text logs to w; stdout stays free for command output and the MCP protocol
func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// openApp loads the configuration and wires the application
func (o *rootOptions) openApp(ctx context.Context, cmd *cobra.Command) (*app.App, *slog.Logger, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
