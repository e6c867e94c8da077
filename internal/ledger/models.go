package ledger

import (
	"time"

	"spritebatch/internal/batch"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial marks a run that finished with failed or skipped batches.
	RunPartial  RunStatus = "partial"
	RunFailed   RunStatus = "failed"
	RunCanceled RunStatus = "canceled"
)

// StatusPending marks a planned batch that has not reached a terminal state.
const StatusPending batch.Status = "pending"

// Run is one recorded invocation over a root directory.
type Run struct {
	ID           string
	RootDir      string
	OutputDir    string
	Endpoint     string
	BatchSize    int
	Workers      int
	Status       RunStatus
	TotalImages  int
	TotalBatches int
	ArchivePath  string
	PublishedURL string
	ErrorMessage string
	Attempts     int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the wall time of a finished run, or zero.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// BatchRecord mirrors a batch.Result plus the image list needed to re-run it.
type BatchRecord struct {
	RunID        string
	Index        int
	Status       batch.Status
	ImageCount   int
	Detected     bool
	Dir          string
	ErrorKind    string
	ErrorMessage string
	Attempts     int
	UpdatedAt    time.Time
	Images       []string
}

// Batch converts the record back into a dispatchable batch.
func (r BatchRecord) Batch() batch.Batch {
	return batch.Batch{Index: r.Index, Images: append([]string(nil), r.Images...)}
}

// Finish describes the terminal update applied to a run.
type Finish struct {
	Status       RunStatus
	ArchivePath  string
	PublishedURL string
	Err          error
	FinishedAt   time.Time
}
