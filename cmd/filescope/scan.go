package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/filescope-mcp/internal/indexer"
	"github.com/dshills/filescope-mcp/pkg/types"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "scan <root>...",
		Short: "Classify every eligible file under the given directories",
		Long: `Scan walks each root, classifies new and changed files and records the
outcome. Interrupting a scan (Ctrl-C) saves its checkpoint; running the same scan
again resumes where it stopped unless --fresh is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				roots = append(roots, abs)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, _, err := root.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanning %d root(s)...\n", len(roots))
			report, err := a.Indexer.Scan(ctx, roots, indexer.ScanOptions{Fresh: fresh})
			if report != nil {
				printReport(out, report)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "discard an interrupted scan of the same roots and start over")
	return cmd
}

func printReport(w io.Writer, r *indexer.Report) {
	c := r.Counts
	switch r.State {
	case types.ScanCancelled:
		fmt.Fprintf(w, "\nCancelled after %s; run the same scan again to resume\n", r.Duration.Round(time.Millisecond))
	case types.ScanFailed:
		fmt.Fprintf(w, "\nFailed after %s\n", r.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "\nDone in %s\n", r.Duration.Round(time.Millisecond))
	}
	if r.Resumed {
		fmt.Fprintf(w, "  Resumed scan %s\n", r.ScanID)
	}
	fmt.Fprintf(w, "  Files:      %s processed\n", humanize.Comma(int64(c.Processed())))
	fmt.Fprintf(w, "  Classified: %s (%s by offline fallback)\n",
		humanize.Comma(int64(c.Classified)), humanize.Comma(int64(c.Fallback)))
	fmt.Fprintf(w, "  Unchanged:  %s\n", humanize.Comma(int64(c.Unchanged)))
	fmt.Fprintf(w, "  Skipped:    %s\n", humanize.Comma(int64(c.Skipped)))
	fmt.Fprintf(w, "  Failed:     %s\n", humanize.Comma(int64(c.Failed)))
	if c.Pruned > 0 {
		fmt.Fprintf(w, "  Pruned:     %s\n", humanize.Comma(int64(c.Pruned)))
	}
	for i, msg := range r.Errors {
		if i == 5 {
			fmt.Fprintf(w, "  ... and %d more errors\n", len(r.Errors)-5)
			break
		}
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
}
