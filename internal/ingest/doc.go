// Package ingest runs the per-camera stream worker: it reads frames, asks
// the detector for tracked objects, and persists tracks, observations and
// associations in batched store transactions.
//
// A worker owns exactly one camera stream. Reconnects keep the active track
// state so a local track id that survives a stream hiccup keeps writing to the
// same track.
package ingest
