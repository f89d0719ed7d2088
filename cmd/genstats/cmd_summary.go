package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSummaryCmd(c *cli) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Fetch the statistical summary of the current dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.client.FetchSummary(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.save(); err != nil {
				return err
			}

			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), string(summary))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.Indent())
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the document exactly as received")
	return cmd
}
