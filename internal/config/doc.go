// Package config loads, normalizes, and validates pawluxe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PAWLUXE_DETECTOR_URL. The Config type centralizes every knob the ingestion
// worker, the export worker and the CLI need, so the database, export and log
// locations are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
