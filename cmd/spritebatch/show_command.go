package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run and its batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openLedger(cfg, true)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records, err := store.Batches(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), titleCase.String(string(run.Status)), colorize))
			fmt.Fprintln(out, renderStatusLine("Root", statusInfo, run.RootDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Output", statusInfo, run.OutputDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Endpoint", statusInfo, run.Endpoint, colorize))
			fmt.Fprintln(out, renderStatusLine("Images", statusInfo, counts.Sprintf("%d in %d batch(es) of up to %d", run.TotalImages, run.TotalBatches, run.BatchSize), colorize))
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatTimestamp(run.StartedAt), colorize))
			fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatDuration(run.Duration()), colorize))
			fmt.Fprintln(out, renderStatusLine("Attempts", statusInfo, strconv.Itoa(run.Attempts), colorize))
			if run.ArchivePath != "" {
				fmt.Fprintln(out, renderStatusLine("Archive", statusOK, run.ArchivePath, colorize))
			}
			if run.PublishedURL != "" {
				fmt.Fprintln(out, renderStatusLine("Published", statusOK, run.PublishedURL, colorize))
			}
			if run.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, run.ErrorMessage, colorize))
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				detail := rec.ErrorKind
				if rec.ErrorMessage != "" {
					detail = truncate(rec.ErrorMessage, errorColumnWidth)
				}
				rows = append(rows, []string{
					strconv.Itoa(rec.Index),
					counts.Sprintf("%d", rec.ImageCount),
					titleCase.String(string(rec.Status)),
					yesNo(rec.Detected),
					strconv.Itoa(rec.Attempts),
					detail,
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Batch", "Images", "Status", "Detected", "Attempts", "Error"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
