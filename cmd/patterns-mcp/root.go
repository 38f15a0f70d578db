package main

import (
	"github.com/spf13/cobra"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/config"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/logging"
)

// NewRootCmd creates the root command with all subcommands registered
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "patterns-mcp",
		Short:         "Design pattern recommendations over MCP",
		Long:          "patterns-mcp recommends design patterns for a problem description, combining keyword matching with embedding similarity.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newStrategiesCmd(),
		newClustersCmd(),
		newImportCmd(),
		newVersionCmd(),
	)

	return root
}

// openApp loads configuration and wires the application. Logs go to the
// command's stderr; stdout stays free for results and the MCP stream.
func openApp(cmd *cobra.Command) (*App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	return Wire(cmd.Context(), cfg, logger)
}
