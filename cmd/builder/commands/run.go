package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/builder/internal/app"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/zerr"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job|meta>",
		Short: "Build a job and everything it needs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			submit, err := submitOptions(cmd)
			if err != nil {
				return err
			}
			quiet, _ := cmd.Flags().GetBool("quiet")

			return c.app.Run(cmd.Context(), args[0], app.RunOptions{
				SessionOptions: sessionOptions(cmd),
				SubmitOptions:  submit,
				Quiet:          quiet,
			})
		},
	}
	addSubmitFlags(cmd)
	cmd.Flags().BoolP("quiet", "q", false, "Do not stream job output")
	return cmd
}

func addSubmitFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("start", "s", "", "Start of the build window (date, RFC 3339 or unix seconds)")
	cmd.Flags().StringP("end", "e", "", "End of the build window, defaults to the start")
	cmd.Flags().BoolP("force", "f", false, "Force the submitted jobs to run")
	cmd.Flags().StringP("direction", "d", "up", "Expansion direction: up, down or both")
	cmd.Flags().Int("depth", 0, "Number of job levels to expand, 0 is unbounded")
	cmd.Flags().BoolP("dry-run", "n", false, "Print commands instead of running them")
}

func submitOptions(cmd *cobra.Command) (app.SubmitOptions, error) {
	var opts app.SubmitOptions

	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	if start != "" {
		t, err := domain.ParseTime(start)
		if err != nil {
			return opts, zerr.Wrap(err, "invalid --start")
		}
		opts.Context.StartTime = t
	}
	if end != "" {
		t, err := domain.ParseTime(end)
		if err != nil {
			return opts, zerr.Wrap(err, "invalid --end")
		}
		opts.Context.EndTime = t
	}

	direction, _ := cmd.Flags().GetString("direction")
	d, err := domain.ParseDirection(direction)
	if err != nil {
		return opts, err
	}
	opts.Direction = d
	opts.Depth, _ = cmd.Flags().GetInt("depth")
	opts.Force, _ = cmd.Flags().GetBool("force")
	return opts, nil
}
