package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newClustersCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Group indexed patterns by embedding similarity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			clusters, err := app.Index.CalculateClusters(k)
			if err != nil {
				return fmt.Errorf("%w (run index first)", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model: %s\n", app.Index.ModelID())
			for i, c := range clusters {
				fmt.Fprintf(out, "cluster %d (%d): %s\n", i+1, len(c.MemberIDs), strings.Join(c.MemberIDs, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 3, "number of clusters")
	return cmd
}
