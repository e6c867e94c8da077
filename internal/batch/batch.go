// Package batch partitions discovered images into upload batches and defines
// the per-batch result recorded by a run.
package batch

import (
	"fmt"
	"strings"

	"spritebatch/internal/services"
)

// DefaultSize is the batch size used when none is configured.
const DefaultSize = 100

// Batch is a contiguous slice of the discovered images with a 1-based index.
type Batch struct {
	Index  int
	Images []string
}

// Status is the terminal outcome of a batch.
type Status string

const (
	StatusDetected Status = "detected"
	StatusClean    Status = "clean"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// ParseStatus converts a stored status string back into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusDetected:
		return StatusDetected, nil
	case StatusClean:
		return StatusClean, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusSkipped:
		return StatusSkipped, nil
	}
	return "", fmt.Errorf("unknown batch status %q", raw)
}

// Retryable reports whether a batch with this status should be re-dispatched.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusSkipped
}

// Result is the recorded outcome of one batch. It is never modified after the
// orchestrator records it.
type Result struct {
	Index      int
	ImageCount int
	Detected   bool
	Dir        string
	Status     Status
	Err        error
}

// Failed builds the result for a batch whose upload or extraction failed.
func Failed(b Batch, err error) Result {
	return Result{Index: b.Index, ImageCount: len(b.Images), Status: StatusFailed, Err: err}
}

// Skipped builds the result for a batch that was never dispatched.
func Skipped(b Batch, err error) Result {
	return Result{Index: b.Index, ImageCount: len(b.Images), Status: StatusSkipped, Err: err}
}

// Completed builds the result for a batch whose archive was extracted.
func Completed(b Batch, detected bool, dir string) Result {
	status := StatusClean
	if detected {
		status = StatusDetected
	}
	return Result{Index: b.Index, ImageCount: len(b.Images), Detected: detected, Dir: dir, Status: status}
}

// Plan splits images into ceil(len(images)/size) order-preserving batches.
// Every batch except possibly the last holds exactly size images.
func Plan(images []string, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, services.Wrap(services.ErrInvalidBatchSize, "planning", "plan", fmt.Sprintf("batch size must be positive, got %d", size), nil)
	}
	if len(images) == 0 {
		return nil, nil
	}
	count := (len(images) + size - 1) / size
	batches := make([]Batch, 0, count)
	for start := 0; start < len(images); start += size {
		end := min(start+size, len(images))
		batches = append(batches, Batch{
			Index:  len(batches) + 1,
			Images: images[start:end:end],
		})
	}
	return batches, nil
}

// Indices returns the indices of the results that have the given status.
func Indices(results []Result, status Status) []int {
	var out []int
	for _, r := range results {
		if r.Status == status {
			out = append(out, r.Index)
		}
	}
	return out
}
