package pipeline

import (
	"sync"
	"time"

	"spritebatch/internal/batch"
	"spritebatch/internal/ledger"
)

// Summary is the outcome of a run or retry.
type Summary struct {
	RunID        string
	RootDir      string
	OutputDir    string
	TotalImages  int
	TotalBatches int
	// Results holds one entry per batch in index order.
	Results      []batch.Result
	ArchivePath  string
	PublishedURL string
	Canceled     bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Detected returns the indices of batches with positive detections.
func (s *Summary) Detected() []int { return batch.Indices(s.Results, batch.StatusDetected) }

// Failed returns the indices of batches whose upload or extraction failed.
func (s *Summary) Failed() []int { return batch.Indices(s.Results, batch.StatusFailed) }

// Skipped returns the indices of batches never dispatched.
func (s *Summary) Skipped() []int { return batch.Indices(s.Results, batch.StatusSkipped) }

// Clean returns the indices of batches without detections.
func (s *Summary) Clean() []int { return batch.Indices(s.Results, batch.StatusClean) }

// Complete reports whether every batch reached detected or clean.
func (s *Summary) Complete() bool {
	return len(s.Failed()) == 0 && len(s.Skipped()) == 0
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunStatus maps the summary onto the ledger's run lifecycle.
func (s *Summary) RunStatus() ledger.RunStatus {
	switch {
	case s.Canceled:
		return ledger.RunCanceled
	case s.Complete():
		return ledger.RunCompleted
	default:
		return ledger.RunPartial
	}
}

// collector gathers batch results from concurrent workers into an
// index-addressed slice.
type collector struct {
	mu      sync.Mutex
	results []batch.Result
	filled  []bool
}

func newCollector(n int) *collector {
	return &collector{results: make([]batch.Result, n), filled: make([]bool, n)}
}

func (c *collector) set(pos int, result batch.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[pos] = result
	c.filled[pos] = true
}

func (c *collector) done(pos int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filled[pos]
}

func (c *collector) snapshot() []batch.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]batch.Result(nil), c.results...)
}
