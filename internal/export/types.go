package export

import (
	"time"

	"pawluxe/internal/store"
)

// Excerpt is one cut from a recorded media segment.
type Excerpt struct {
	CameraID        string    `json:"camera_id"`
	SegmentID       string    `json:"segment_id"`
	SegmentPath     string    `json:"segment_path"`
	ClipStart       time.Time `json:"clip_start_ts"`
	ClipEnd         time.Time `json:"clip_end_ts"`
	OffsetSeconds   float64   `json:"offset_start_sec"`
	DurationSeconds float64   `json:"duration_sec"`
}

// Params control excerpt planning.
type Params struct {
	PaddingSeconds     float64
	MergeGapSeconds    float64
	MinDurationSeconds float64
}

// ParamsFromRequest extracts planning parameters from a job payload.
func ParamsFromRequest(req store.JobRequest) Params {
	return Params{
		PaddingSeconds:     req.PaddingSeconds,
		MergeGapSeconds:    req.MergeGapSeconds,
		MinDurationSeconds: req.MinDurationSeconds,
	}
}

// Summary describes a plan. Highlight fields are only set in highlights mode.
type Summary struct {
	GlobalTrackID         string   `json:"global_track_id"`
	TrackCount            int      `json:"track_count"`
	SegmentCount          int      `json:"segment_count"`
	ExcerptCount          int      `json:"excerpt_count"`
	TotalDurationSeconds  float64  `json:"total_duration_sec"`
	CameraIDs             []string `json:"camera_ids"`
	PaddingSeconds        float64  `json:"padding_seconds"`
	MergeGapSeconds       float64  `json:"merge_gap_seconds"`
	MinDurationSeconds    float64  `json:"min_duration_seconds"`
	Mode                  string   `json:"mode,omitempty"`
	TargetSeconds         *float64 `json:"target_seconds,omitempty"`
	PerClipSeconds        *float64 `json:"per_clip_seconds,omitempty"`
	HighlightExcerptCount *int     `json:"highlight_excerpt_count,omitempty"`
}

// WithHighlights records the highlight selection in the summary.
func (s Summary) WithHighlights(targetSeconds, perClipSeconds float64, selected []Excerpt) Summary {
	count := len(selected)
	s.Mode = string(store.ModeHighlights)
	s.TargetSeconds = &targetSeconds
	s.PerClipSeconds = &perClipSeconds
	s.HighlightExcerptCount = &count
	return s
}

// Plan is the planner output.
type Plan struct {
	Excerpts []Excerpt `json:"excerpts"`
	Summary  Summary   `json:"summary"`
}

// TotalDuration sums excerpt durations in seconds.
func TotalDuration(excerpts []Excerpt) float64 {
	var total float64
	for _, e := range excerpts {
		total += e.DurationSeconds
	}
	return total
}
