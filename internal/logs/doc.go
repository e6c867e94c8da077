// Package logs reads the JSON run log written under the configured log
// directory.
//
// Tail returns the last N lines or everything after an offset, optionally
// waiting for new lines, with bounded memory. ParseEntry and Filter turn raw
// lines into records that can be narrowed to a single run or batch, which is
// what `spritebatch logs --run <id>` uses to replay the log of one run.
package logs
