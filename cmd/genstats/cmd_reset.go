package main

import (
	"errors"
	"fmt"

	"github.com/genstats/client/internal/storage"
	"github.com/spf13/cobra"
)

func newResetCmd(c *cli) *cobra.Command {
	var clearHistory bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			a.client.Reset()
			if err := a.store.Delete(a.name); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if clearHistory && a.journal != nil {
				if err := a.journal.Clear(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset\n", a.name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearHistory, "history", false, "Also clear the operation history")
	return cmd
}
