// Package services defines shared utilities consumed by the ingestion worker,
// the export planner and the job queue.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, camera IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (not found, validation, transient, external tool) so callers can decide
//     whether to abort, retry, or record a soft failure.
//
// Use these helpers when wiring new worker logic so operational behaviour
// (error handling, observability) stays uniform across both workers.
package services
