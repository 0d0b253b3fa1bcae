// Package workflow runs the export job worker.
//
// The Manager polls the export job table, claims the oldest pending job,
// plans its excerpts, applies highlight selection when requested, writes the
// manifest and optionally renders the video before recording the outcome.
// Jobs run one at a time. A file lock keeps a second worker from starting
// against the same data directory, and panics inside job processing are
// recovered into job failures so the loop keeps going.
package workflow
