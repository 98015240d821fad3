package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/builder/internal/app"
)

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the execution daemon and accept jobs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			parallelism, _ := cmd.Flags().GetInt("parallelism")
			watch, _ := cmd.Flags().GetBool("watch")
			return c.app.Serve(cmd.Context(), app.ServeOptions{
				SessionOptions: sessionOptions(cmd),
				Listen:         listen,
				Parallelism:    parallelism,
				Watch:          watch,
			})
		},
	}
	cmd.Flags().StringP("listen", "l", "", "Listen address, overrides the rules file")
	cmd.Flags().IntP("parallelism", "p", 0, "Maximum concurrently running jobs, 0 uses the CPU count")
	cmd.Flags().BoolP("watch", "w", false, "Refresh targets when the files behind them change")
	cmd.Flags().BoolP("dry-run", "n", false, "Print commands instead of running them")
	return cmd
}
