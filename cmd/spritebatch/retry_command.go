package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "retry <run-id>",
		Short: "Re-run the failed and skipped batches of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyRunOverrides(cmd, base, &opts)
			if err != nil {
				return err
			}
			runner, cleanup, err := buildRunner(cmd, ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, runErr := runner.Retry(runCtx, args[0])
			return finishCommand(cmd, summary, runErr, opts.strict)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "parallel", "p", 0, "Batches uploaded concurrently (default from config)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "Detection endpoint URL (default from config)")
	flags.BoolVar(&opts.strict, "strict", false, "Exit with status 2 when any batch is still failed or skipped")
	flags.BoolVar(&opts.noPublish, "no-archive-publish", false, "Do not upload the run archive even when publishing is enabled")
	return cmd
}
