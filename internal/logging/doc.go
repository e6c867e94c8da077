// Package logging assembles structured slog loggers and formatting helpers used
// across spritebatch.
//
// It owns the console and JSON handlers, mirrors every record into a JSON run
// log under the configured log directory, and exposes context-aware helpers so
// pipeline code automatically tags log lines with run IDs, batch indices, and
// stages. A no-op logger is provided for tests and optional wiring.
package logging
