// Package ledger keeps the SQLite history of runs and their batch outcomes.
//
// Every run is recorded with its planned batches and image lists before the
// first upload, and each batch row is updated as it reaches a terminal state.
// That record backs the history and show commands and lets retry re-dispatch
// only the failed or skipped subset of an earlier run.
package ledger
