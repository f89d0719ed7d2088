package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session and optionally check the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			st := a.client.State()

			fmt.Fprintf(out, "Session: %s\n", a.name)
			fmt.Fprintf(out, "Backend: %s\n", a.backend.BaseURL())
			if st.HasDataset() {
				fmt.Fprintf(out, "Dataset: %s\n", st.Handle)
			} else {
				fmt.Fprintf(out, "Dataset: none (run 'genstats upload <file>')\n")
			}
			switch {
			case st.Summary.IsZero():
				fmt.Fprintf(out, "Summary: not fetched\n")
			case st.SummaryHandle != st.Handle:
				fmt.Fprintf(out, "Summary: stale (fetched for %s, %d bytes)\n", st.SummaryHandle, len(st.Summary))
			default:
				fmt.Fprintf(out, "Summary: %d bytes\n", len(st.Summary))
			}
			if st.InsightQuery != "" {
				fmt.Fprintf(out, "Last query: %s\n", st.InsightQuery)
				fmt.Fprintf(out, "Last answer: %s\n", st.InsightResponse)
			}

			if check {
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				health, err := a.backend.Health(ctx)
				if err != nil {
					fmt.Fprintf(out, "Health: unreachable (%v)\n", err)
					return nil
				}
				fmt.Fprintf(out, "Health: %s (version %s)\n", health.Status, health.Version)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Also call the backend health endpoint")
	return cmd
}
