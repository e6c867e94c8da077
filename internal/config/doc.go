// Package config loads, normalizes, and validates spritebatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides for the
// detection endpoint and integration credentials. A .env file in the working
// directory acts as a lower-priority environment source. The Config type
// centralizes every knob the orchestrator and CLI need, so runs are configured
// by one value passed at construction rather than process-wide state.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extensions, and clear validation errors.
package config
