package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Check every embedding strategy and show which one is active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			active := app.Embeddings.GetStrategyInfo()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STRATEGY\tAVAILABLE\tMODEL\tACTIVE")
			for _, st := range app.Factory.GetAvailableStrategies(cmd.Context()) {
				mark := ""
				if st.Name == active.Name {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", st.Name, st.Available, st.Model, mark)
			}
			return w.Flush()
		},
	}
}
