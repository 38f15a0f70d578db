package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/matcher"
)

func newSearchCmd() *cobra.Command {
	var (
		categories []string
		limit      int
		language   string
		fulltext   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Recommend patterns for a problem description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if fulltext {
				return printFullText(cmd, app, strings.Join(args, " "), limit)
			}

			recs, err := app.Matcher.FindMatchingPatterns(cmd.Context(), matcher.Request{
				Query:      strings.Join(args, " "),
				Categories: categories,
				MaxResults: limit,
				Language:   language,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "no matching patterns")
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(out, "%d. %s (%s) [%s] confidence %.2f\n",
					r.Rank, r.Pattern.Name, r.Pattern.ID, r.MatchType, r.Confidence)
				for _, reason := range r.Reasons {
					fmt.Fprintf(out, "   - %s\n", reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil, "restrict results to these categories")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().StringVar(&language, "language", "", "programming language to mention in reasons")
	cmd.Flags().BoolVar(&fulltext, "fulltext", false, "query the catalog full-text index directly, without ranking")
	return cmd
}

// printFullText lists raw full-text hits in index order
func printFullText(cmd *cobra.Command, app *App, query string, limit int) error {
	if limit <= 0 {
		limit = app.Config.Search.MaxResults
	}
	patterns, err := app.Store.SearchPatterns(cmd.Context(), query, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(patterns) == 0 {
		fmt.Fprintln(out, "no matching patterns")
		return nil
	}
	for i, p := range patterns {
		fmt.Fprintf(out, "%d. %s (%s) [%s]\n", i+1, p.Name, p.ID, p.Category)
	}
	return nil
}
