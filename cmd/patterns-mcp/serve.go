package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/indexer"
)

func newServeCmd() *cobra.Command {
	var skipIndex bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			server, err := app.NewMCPServer()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Catch up on catalog changes while already answering requests;
			// rebuild_embeddings reports in-progress until this finishes.
			if !skipIndex {
				go func() {
					if _, err := app.Indexer.Index(ctx, indexer.Options{}); err != nil && ctx.Err() == nil {
						app.Logger.Warn().Err(err).Msg("startup index run failed")
					}
				}()
			}

			err = server.Serve(ctx)
			if ctx.Err() != nil {
				app.Logger.Info().Msg("server stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&skipIndex, "skip-index", false, "do not update embeddings at startup")
	return cmd
}
