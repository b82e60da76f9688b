package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/filescope-mcp/internal/searcher"
	"github.com/dshills/filescope-mcp/pkg/types"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		limit    int
		mode     string
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search classified files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > searcher.MaxLimit {
				return fmt.Errorf("--limit must be between 1 and %d", searcher.MaxLimit)
			}
			m, err := searcher.ParseMode(mode)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, _, err := root.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			resp, err := a.Searcher.Search(ctx, searcher.Request{
				Query:    strings.Join(args, " "),
				Limit:    limit,
				Mode:     m,
				MinScore: minScore,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintf(out, "No results (%d records searched)\n", a.Store.Len())
				return nil
			}
			for _, r := range resp.Results {
				fmt.Fprintf(out, "%2d. %.3f  %s\n", r.Rank, r.Score, r.Record.Path)
				fmt.Fprintf(out, "    %s: %s\n", r.Record.Category, r.Record.Summary)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, fmt.Sprintf("maximum number of results (1-%d)", searcher.MaxLimit))
	cmd.Flags().StringVarP(&mode, "mode", "m", string(searcher.SearchModeSemantic), "semantic, keyword, hybrid, name or extension")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results scoring below this threshold")
	return cmd
}

func newGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Show the stored record of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			a, _, err := root.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			rec, ok := a.Searcher.GetRecord(path)
			if !ok {
				return fmt.Errorf("no record for %s", path)
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func printRecord(w io.Writer, rec *types.FileRecord) {
	fmt.Fprintf(w, "Path:       %s\n", rec.Path)
	fmt.Fprintf(w, "Size:       %s\n", humanize.Bytes(uint64(max(rec.Size, 0))))
	fmt.Fprintf(w, "Modified:   %s\n", humanize.Time(rec.ModTime))
	fmt.Fprintf(w, "State:      %s\n", rec.State)
	if rec.Provider != "" {
		fmt.Fprintf(w, "Classifier: %s\n", rec.Provider)
	}
	fmt.Fprintf(w, "Category:   %s\n", rec.Category)
	fmt.Fprintf(w, "Summary:    %s\n", rec.Summary)
	fmt.Fprintf(w, "Keywords:   %s\n", strings.Join(rec.Keywords, ", "))
	if !rec.ClassifiedAt.IsZero() {
		fmt.Fprintf(w, "Classified: %s\n", humanize.Time(rec.ClassifiedAt))
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", rec.Error)
	}
}
