package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spritebatch/internal/config"
	"spritebatch/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	var endpoint string
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Verify directories and remote services before a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if strings.TrimSpace(endpoint) != "" {
				cfg.Detector.Endpoint = strings.TrimSpace(endpoint)
			}
			opts := preflight.Options{}
			if len(args) == 1 {
				root, err := config.ExpandPath(args[0])
				if err != nil {
					return fmt.Errorf("resolve directory: %w", err)
				}
				opts.RootDir = root
			}
			if strings.TrimSpace(outDir) != "" {
				expanded, err := config.ExpandPath(outDir)
				if err != nil {
					return fmt.Errorf("resolve --outdir: %w", err)
				}
				opts.OutputDir = expanded
			}

			results := preflight.RunAll(cmd.Context(), &cfg, opts)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return &exitCodeError{code: 1, err: fmt.Errorf("%d of %d checks failed", len(failed), len(results))}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "outdir", "o", "", "Output root to check (default from config)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Detection endpoint URL to probe (default from config)")
	return cmd
}
