package main

import (
	"fmt"

	"github.com/genstats/client/internal/upload"
	"github.com/spf13/cobra"
)

func newUploadCmd(c *cli) *cobra.Command {
	var contentType string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a dataset file and make it the current dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := upload.ReadFile(args[0])
			if err != nil {
				return err
			}
			if contentType != "" {
				file.ContentType = contentType
			}

			a, err := c.open(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if !quiet {
				errOut := cmd.ErrOrStderr()
				a.client.Uploads().SetListener(func(j upload.Job) {
					fmt.Fprintf(errOut, "\r%s", j.String())
				})
			}

			a.client.SelectFile(file)
			handle, err := a.client.UploadFile(cmd.Context())
			if !quiet {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			if err := a.save(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploaded %s (%d bytes)\n", file.Name, file.Size())
			fmt.Fprintf(out, "Dataset: %s\n", handle)
			if st := a.client.State(); len(st.Preview) > 0 {
				fmt.Fprintf(out, "Response: %s\n", st.Preview)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "Declared media type (default from extension, text/csv)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print upload progress")
	return cmd
}
