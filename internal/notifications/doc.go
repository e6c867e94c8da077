// Package notifications publishes run lifecycle events to an AMQP queue.
//
// Events are JSON messages carrying the run id, batch indices, and archive
// location so downstream consumers can pick up finished runs. When
// notifications are disabled in config.toml the package degrades to a no-op,
// and pipeline code depends only on the Service interface.
package notifications
