package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spritebatch/internal/logging"
	"spritebatch/internal/logs"
)

const followWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var batchIndex int
	var level string
	var lines int
	var follow bool
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			filter := logs.Filter{
				RunID:      strings.TrimSpace(runID),
				BatchIndex: batchIndex,
				MinLevel:   strings.TrimSpace(level),
			}
			limit := lines
			if filter.RunID != "" || filter.BatchIndex > 0 || filter.MinLevel != "" {
				// Filtering happens after the tail, so read the whole file.
				limit = 0
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			result, err := readLog(runCtx, path, limit)
			if err != nil {
				return err
			}
			printed := filterLogLines(result.Lines, filter, raw)
			if lines > 0 && limit == 0 && len(printed) > lines {
				printed = printed[len(printed)-lines:]
			}
			for _, line := range printed {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: followWait})
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				offset = next.Offset
				for _, line := range filterLogLines(next.Lines, filter, raw) {
					fmt.Fprintln(out, line)
				}
				if runCtx.Err() != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Only show records for this run id (prefix allowed)")
	cmd.Flags().IntVar(&batchIndex, "batch", 0, "Only show records for this batch index")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing records to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new records as they are written")
	cmd.Flags().BoolVar(&raw, "json", false, "Print records as raw JSON")
	return cmd
}

func readLog(ctx context.Context, path string, limit int) (logs.TailResult, error) {
	if limit > 0 {
		return logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: limit})
	}
	return logs.Tail(ctx, path, logs.TailOptions{Offset: 0})
}

// filterLogLines returns the formatted lines that pass the filter. Lines that
// are not JSON records are passed through only when no filter is set.
func filterLogLines(lines []string, filter logs.Filter, raw bool) []string {
	unfiltered := filter == logs.Filter{}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := logs.ParseEntry(line)
		if err != nil {
			if unfiltered {
				out = append(out, line)
			}
			continue
		}
		if !filter.Match(entry) {
			continue
		}
		if raw {
			out = append(out, line)
		} else {
			out = append(out, logs.Format(entry))
		}
	}
	return out
}
