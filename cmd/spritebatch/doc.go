// Package main hosts the spritebatch CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into pipeline runs,
// retries of recorded runs, ledger queries, run-log views, preflight checks, and
// configuration scaffolding. It centralizes configuration resolution, logger
// construction, and ledger access so subcommands can focus on presentation.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
