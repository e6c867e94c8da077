package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"spritebatch/internal/config"
	"spritebatch/internal/logging"
	"spritebatch/internal/notifications"
	"spritebatch/internal/pipeline"
	"spritebatch/internal/preflight"
	"spritebatch/internal/services/storage"
)

type runOptions struct {
	outDir    string
	batchSize int
	workers   int
	endpoint  string
	strict    bool
	noPublish bool
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.outDir, "outdir", "o", "", "Output root for batch results (default from config)")
	flags.IntVarP(&opts.batchSize, "batch", "b", 0, "Images per request (default from config)")
	flags.IntVarP(&opts.workers, "parallel", "p", 0, "Batches uploaded concurrently (default from config)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "Detection endpoint URL (default from config)")
	flags.BoolVar(&opts.strict, "strict", false, "Exit with status 2 when any batch failed or was skipped")
	flags.BoolVar(&opts.noPublish, "no-archive-publish", false, "Do not upload the run archive even when publishing is enabled")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Detect sprites in every image under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, ctx, &opts, args[0])
		},
	}
	bindRunFlags(cmd, &opts)
	return cmd
}

// applyRunOverrides returns a copy of cfg with command-line flags applied.
// Flags are applied only when set so an explicit --batch 0 is still rejected
// by the planner.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config, opts *runOptions) (*config.Config, error) {
	local := *cfg
	flags := cmd.Flags()
	if flags.Changed("batch") {
		local.Batch.Size = opts.batchSize
	}
	if flags.Changed("parallel") {
		if opts.workers <= 0 {
			return nil, fmt.Errorf("--parallel must be positive, got %d", opts.workers)
		}
		local.Batch.Workers = opts.workers
	}
	if endpoint := strings.TrimSpace(opts.endpoint); endpoint != "" {
		local.Detector.Endpoint = endpoint
	}
	if outDir := strings.TrimSpace(opts.outDir); outDir != "" {
		expanded, err := config.ExpandPath(outDir)
		if err != nil {
			return nil, fmt.Errorf("resolve --outdir: %w", err)
		}
		local.Paths.OutputDir = expanded
	}
	if opts.noPublish {
		local.Publish.Enabled = false
	}
	return &local, nil
}

func executeRun(cmd *cobra.Command, ctx *commandContext, opts *runOptions, dir string) error {
	base, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	cfg, err := applyRunOverrides(cmd, base, opts)
	if err != nil {
		return err
	}
	root, err := config.ExpandPath(dir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	if check := preflight.CheckOutputRoot(cfg.Paths.OutputDir); !check.Passed {
		return fmt.Errorf("output root not writable: %s", check.Detail)
	}

	runner, cleanup, err := buildRunner(cmd, ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := runner.Run(runCtx, pipeline.Request{RootDir: root, OutputDir: cfg.Paths.OutputDir})
	return finishCommand(cmd, summary, runErr, opts.strict)
}

// buildRunner wires the pipeline with the ledger, publisher, and notifier the
// config enables. The returned cleanup closes them.
func buildRunner(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) (*pipeline.Runner, func(), error) {
	logger, err := ctx.logger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	var options []pipeline.Option
	store, err := ctx.openLedger(cfg, false)
	if err != nil {
		logging.WarnWithContext(logger, "run ledger unavailable", "ledger_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not be recorded and cannot be retried"),
		)
	} else if store != nil {
		closers = append(closers, store.Close)
		options = append(options, pipeline.WithLedger(store))
	}

	if cfg.Publish.Enabled {
		options = append(options, pipeline.WithPublisher(storage.New(cfg.Publish)))
	}

	notifier, err := notifications.NewService(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "notifications unavailable", "notification_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run events will not be published"),
		)
		notifier = notifications.Noop()
	}
	closers = append(closers, notifier.Close)
	options = append(options, pipeline.WithNotifier(notifier))

	runner, err := pipeline.New(cfg, logger, options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return runner, cleanup, nil
}

// finishCommand renders the summary and maps the outcome to an exit status.
func finishCommand(cmd *cobra.Command, summary *pipeline.Summary, runErr error, strict bool) error {
	out := cmd.OutOrStdout()
	if summary != nil {
		if summary.TotalImages == 0 && len(summary.Results) == 0 {
			fmt.Fprintf(out, "No images found under %s\n", summary.RootDir)
			return runErr
		}
		renderRunSummary(out, summary, shouldColorize(out))
	}
	if runErr != nil {
		if summary != nil && errors.Is(runErr, context.Canceled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Run interrupted; remaining batches were skipped. Resume with `spritebatch retry "+summary.RunID+"`.")
		}
		return runErr
	}
	if strict && summary != nil && !summary.Complete() {
		return &exitCodeError{code: 2, err: fmt.Errorf("%d batch(es) failed and %d skipped", len(summary.Failed()), len(summary.Skipped()))}
	}
	return nil
}
