// Package pipeline orchestrates a run: discover images, plan batches, upload
// each batch to the detection service, extract the returned archives, and
// package the output root into a run archive.
//
// A Runner moves through a fixed sequence of states (see State). Batches are
// processed by a bounded worker pool, one worker by default, and their results
// are assembled in index order regardless of completion order. Per-batch
// failures are recorded and never abort the run; only discovery, planning,
// locking, and the final archive step are fatal.
//
// When a ledger is attached every run and batch is recorded as it completes,
// which is what Retry uses to re-dispatch failed and skipped batches of an
// earlier run into the same output root.
package pipeline
