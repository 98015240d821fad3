package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/builder/internal/app"
)

func (c *CLI) newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <job|meta>",
		Short: "Print the build graph of a job without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			submit, err := submitOptions(cmd)
			if err != nil {
				return err
			}
			return c.app.Graph(cmd.Context(), args[0], app.GraphOptions{
				SessionOptions: sessionOptions(cmd),
				SubmitOptions:  submit,
			}, cmd.OutOrStdout())
		},
	}
	addSubmitFlags(cmd)
	return cmd
}
