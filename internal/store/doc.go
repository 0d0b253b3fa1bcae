// Package store persists cameras, tracks, observations, identity profiles,
// associations, recording segments and export jobs in SQLite.
//
// The Store manages database connections, schema initialization, busy retries,
// and the export job lifecycle (pending, running, done, failed). Ingestion
// writes go through a Tx so that a whole commit interval of frames lands in one
// unit of work. A Tx buffers its writes and holds the database write lock only
// while Commit flushes them, so several camera workers and the export worker
// can share one database file.
//
// Serialized columns (bounding boxes, centroid vectors, timestamps) are encoded
// and decoded only inside this package; callers always see typed values.
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package store
