package logging

import (
	"strings"
)

// FormatSubject builds the run/batch/stage subject shown in console output,
// e.g. "Run 3f2a9c1d · Batch 2 (upload)".
func FormatSubject(runID, batch, stage string) string {
	runID = strings.TrimSpace(runID)
	batch = strings.TrimSpace(batch)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 2)
	if runID != "" {
		if len(runID) > 8 {
			runID = runID[:8]
		}
		parts = append(parts, "Run "+runID)
	}
	switch {
	case batch != "" && stage != "":
		parts = append(parts, "Batch "+batch+" ("+stage+")")
	case batch != "":
		parts = append(parts, "Batch "+batch)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
