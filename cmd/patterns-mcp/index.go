package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed new and changed catalog patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			stats, err := app.Indexer.Index(cmd.Context(), indexer.Options{Force: force})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "patterns: %d\n", stats.Total)
			fmt.Fprintf(out, "embedded: %d\n", stats.Embedded)
			fmt.Fprintf(out, "skipped:  %d\n", stats.Skipped)
			fmt.Fprintf(out, "removed:  %d\n", stats.Removed)
			fmt.Fprintf(out, "failed:   %d\n", stats.Failed)
			fmt.Fprintf(out, "model:    %s\n", app.Index.ModelID())
			fmt.Fprintf(out, "duration: %s\n", stats.Duration.Round(time.Millisecond))
			for _, msg := range stats.ErrorMessages {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", msg)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d patterns failed to embed", stats.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-embed every pattern regardless of content hash")
	return cmd
}
