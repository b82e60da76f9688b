package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/filescope-mcp/internal/mcp"
	"github.com/dshills/filescope-mcp/internal/storage"
)

// shutdownTimeout bounds how long a running scan may take to save its checkpoint on exit
const shutdownTimeout = 2 * time.Minute

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, logger, err := root.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					logger.Error("shutdown", "error", err)
				}
			}()

			server, err := mcp.NewServer(a, logger)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			logger.Info("filescope MCP server starting", "version", version)
			return server.Serve(ctx)
		},
	}
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := root.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			st := a.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Store:      %s (%s)\n", st.Store.Path, st.Store.Kind)
			if fi, err := os.Stat(st.Store.Path); err == nil {
				fmt.Fprintf(out, "Size:       %s\n", humanize.Bytes(uint64(fi.Size())))
			}
			fmt.Fprintf(out, "Records:    %s (%s with embeddings)\n",
				humanize.Comma(int64(st.Records.Total)), humanize.Comma(int64(st.Records.WithEmbeddings)))

			for _, state := range slices.Sorted(maps.Keys(st.Records.ByState)) {
				fmt.Fprintf(out, "  %-18s %s\n", state, humanize.Comma(int64(st.Records.ByState[state])))
			}

			fmt.Fprintf(out, "Classifier: %s\n", st.Classifier)
			fmt.Fprintf(out, "Embedder:   %s\n", st.Embedder)
			if st.Resumable {
				fmt.Fprintln(out, "An interrupted scan can be resumed")
			}
			if st.LoadWarning != "" {
				fmt.Fprintf(out, "Warning:    %s\n", st.LoadWarning)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "filescope MCP Server\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}
