package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"spritebatch/internal/batch"
	"spritebatch/internal/pipeline"
)

const errorColumnWidth = 60

var (
	counts    = message.NewPrinter(language.English)
	titleCase = cases.Title(language.English)
)

func renderRunSummary(w io.Writer, s *pipeline.Summary, colorize bool) {
	for _, line := range renderSectionHeader("Run "+shortID(s.RunID), colorize) {
		fmt.Fprintln(w, line)
	}

	rows := [][]string{
		{"Images", counts.Sprintf("%d", s.TotalImages)},
		{"Batches", counts.Sprintf("%d", s.TotalBatches)},
		{"Detected", counts.Sprintf("%d", len(s.Detected()))},
		{"Clean", counts.Sprintf("%d", len(s.Clean()))},
		{"Failed", counts.Sprintf("%d", len(s.Failed()))},
		{"Skipped", counts.Sprintf("%d", len(s.Skipped()))},
		{"Duration", formatDuration(s.Duration())},
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	fmt.Fprintln(w, renderStatusLine("Detected batches", detectedKind(s), indexList(s.Detected()), colorize))
	fmt.Fprintln(w, renderStatusLine("Failed batches", failureKind(len(s.Failed())), indexList(s.Failed()), colorize))
	if skipped := s.Skipped(); len(skipped) > 0 {
		fmt.Fprintln(w, renderStatusLine("Skipped batches", statusWarn, indexList(skipped), colorize))
	}
	if s.ArchivePath != "" {
		fmt.Fprintln(w, renderStatusLine("Archive", statusOK, s.ArchivePath, colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("Archive", statusError, "not written", colorize))
	}
	if s.PublishedURL != "" {
		fmt.Fprintln(w, renderStatusLine("Published", statusOK, s.PublishedURL, colorize))
	}

	if failed := failedRows(s.Results); len(failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable([]string{"Batch", "Images", "Status", "Error"}, failed,
			[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft}))
	}
}

func failedRows(results []batch.Result) [][]string {
	var rows [][]string
	for _, r := range results {
		if r.Status != batch.StatusFailed && r.Status != batch.StatusSkipped {
			continue
		}
		detail := ""
		if r.Err != nil {
			detail = truncate(r.Err.Error(), errorColumnWidth)
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index),
			counts.Sprintf("%d", r.ImageCount),
			titleCase.String(string(r.Status)),
			detail,
		})
	}
	return rows
}

func detectedKind(s *pipeline.Summary) statusKind {
	if len(s.Detected()) > 0 {
		return statusOK
	}
	return statusInfo
}

func failureKind(n int) statusKind {
	if n > 0 {
		return statusError
	}
	return statusOK
}

func indexList(indices []int) string {
	if len(indices) == 0 {
		return "none"
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if text.RuneWidthWithoutEscSequences(s) <= limit {
		return s
	}
	return text.Trim(s, limit-1) + "…"
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
