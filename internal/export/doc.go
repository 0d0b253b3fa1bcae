// Package export turns a global identity key into a chronological list of
// video excerpts, optionally trims it to a highlight reel, persists the
// result as a JSON manifest and renders it into a single video with ffmpeg.
//
// Planning reads associations, observation spans and media segments from the
// store; the manifest store and renderer only touch the export directory.
package export
