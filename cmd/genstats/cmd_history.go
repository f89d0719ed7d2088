package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		limit    int
		stats    bool
		markdown bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if a.journal == nil {
				return errors.New("history is disabled or unavailable")
			}

			out := cmd.OutOrStdout()
			if stats {
				counts, err := a.journal.CountByOperation(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, statsTable(counts, markdown))
				return nil
			}

			entries, err := a.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No operations recorded yet.")
				return nil
			}
			fmt.Fprintln(out, historyTable(entries, markdown))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	f.BoolVar(&stats, "stats", false, "Show per-operation counts instead of entries")
	f.BoolVar(&markdown, "markdown", false, "Render as a Markdown table")
	return cmd
}
