package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <query...>",
		Short: "Ask the insight service a free-text question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			answer, err := a.client.SubmitInsightQuery(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := a.save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}
