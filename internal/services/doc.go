// Package services defines shared utilities consumed by the run orchestrator
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, batch indices, stages, and
//     correlation identifiers for logging.
//   - The error taxonomy: sentinel markers for pre-flight failures,
//     batch-scoped failures, and the final archive step, plus BatchError which
//     carries the offending batch index.
//   - Classify, which turns a failure into the short kind stored in the run
//     ledger.
//
// Subpackages hold the HTTP clients for the detection endpoint and the
// optional archive publishing bucket.
package services
