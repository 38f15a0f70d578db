package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog.json>",
		Short: "Load patterns from a JSON array into the catalog",
		Long:  "Import upserts every pattern by id in one transaction. Run index afterwards to embed them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read catalog: %w", err)
			}
			var patterns []*types.Pattern
			if err := json.Unmarshal(data, &patterns); err != nil {
				return fmt.Errorf("failed to parse catalog %s: %w", args[0], err)
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.Store.UpsertPatterns(cmd.Context(), patterns); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d patterns\n", len(patterns))
			return nil
		},
	}
}
