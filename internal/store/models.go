package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pawluxe/internal/services"
)

// Camera is a recording source. Created administratively.
type Camera struct {
	ID           string    `json:"camera_id"`
	LocationZone string    `json:"location_zone"`
	StreamURL    string    `json:"stream_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Track is one continuous local detection run on one camera.
type Track struct {
	ID           string
	CameraID     string
	StartTS      time.Time
	EndTS        time.Time
	QualityScore float64
}

// Observation is one detection event on a track.
type Observation struct {
	ID            string
	TrackID       string
	TS            time.Time
	BBox          [4]float64
	AppearanceRef string
}

// Profile is the running appearance centroid of one auto-resolved identity.
type Profile struct {
	GlobalTrackID string
	ClassID       int
	Centroid      []float64
	SampleCount   int
	UpdatedAt     time.Time
}

// Association binds a track to a global identity key.
type Association struct {
	ID            string
	GlobalTrackID string
	TrackID       string
	Label         string
	Confidence    float64
	CreatedAt     time.Time
}

// Identity is a known identity label that associations may reference.
type Identity struct {
	Label     string
	Name      string
	Auto      bool
	CreatedAt time.Time
}

// MediaSegment is a continuously recorded interval on one camera. A zero
// EndTS means the segment is still open.
type MediaSegment struct {
	ID        string    `json:"segment_id"`
	CameraID  string    `json:"camera_id"`
	StartTS   time.Time `json:"start_ts"`
	EndTS     time.Time `json:"end_ts,omitzero"`
	Path      string    `json:"path"`
	Codec     string    `json:"codec,omitempty"`
}

// JobStatus represents the lifecycle of an export job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// AllJobStatuses lists statuses in lifecycle order.
var AllJobStatuses = []JobStatus{JobPending, JobRunning, JobDone, JobFailed}

// JobMode selects between the full excerpt list and a highlight selection.
type JobMode string

const (
	ModeFull       JobMode = "full"
	ModeHighlights JobMode = "highlights"
)

// ParseJobMode normalizes a user supplied mode. Empty means full.
func ParseJobMode(value string) (JobMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ModeFull):
		return ModeFull, nil
	case string(ModeHighlights):
		return ModeHighlights, nil
	default:
		return "", services.Wrap(services.ErrValidation, "export", "parse mode", fmt.Sprintf("unsupported mode %q", value), nil)
	}
}

// JobRequest is the serialized payload of an export job.
type JobRequest struct {
	Mode               JobMode `json:"mode"`
	PaddingSeconds     float64 `json:"padding_seconds"`
	MergeGapSeconds    float64 `json:"merge_gap_seconds"`
	MinDurationSeconds float64 `json:"min_duration_seconds"`
	RenderVideo        bool    `json:"render_video"`
	TargetSeconds      float64 `json:"target_seconds"`
	PerClipSeconds     float64 `json:"per_clip_seconds"`
}

// DefaultJobRequest returns the payload defaults applied to missing keys.
func DefaultJobRequest() JobRequest {
	return JobRequest{
		Mode:               ModeFull,
		PaddingSeconds:     3.0,
		MergeGapSeconds:    0.2,
		MinDurationSeconds: 0.3,
		RenderVideo:        true,
		TargetSeconds:      30.0,
		PerClipSeconds:     4.0,
	}
}

// Validate rejects payloads the planner cannot honour.
func (r JobRequest) Validate() error {
	if _, err := ParseJobMode(string(r.Mode)); err != nil {
		return err
	}
	checks := []struct {
		name  string
		value float64
		ok    bool
	}{
		{"padding_seconds", r.PaddingSeconds, r.PaddingSeconds >= 0},
		{"merge_gap_seconds", r.MergeGapSeconds, r.MergeGapSeconds >= 0},
		{"min_duration_seconds", r.MinDurationSeconds, r.MinDurationSeconds >= 0},
		{"target_seconds", r.TargetSeconds, r.TargetSeconds >= 0},
		{"per_clip_seconds", r.PerClipSeconds, r.PerClipSeconds > 0},
	}
	for _, check := range checks {
		if !check.ok {
			return services.Wrap(services.ErrValidation, "export", "validate request",
				fmt.Sprintf("%s out of range: %v", check.name, check.value), nil)
		}
	}
	return nil
}

// DecodeJobRequest parses a stored payload, filling missing keys with defaults.
func DecodeJobRequest(mode JobMode, payload string) (JobRequest, error) {
	req := DefaultJobRequest()
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return JobRequest{}, services.Wrap(services.ErrValidation, "export", "decode payload", "invalid job payload", err)
		}
	}
	if mode != "" {
		req.Mode = mode
	}
	parsed, err := ParseJobMode(string(req.Mode))
	if err != nil {
		return JobRequest{}, err
	}
	req.Mode = parsed
	return req, nil
}

// ExportJob is a queued export request.
type ExportJob struct {
	ID            int64      `json:"id"`
	GlobalTrackID string     `json:"global_track_id"`
	Mode          JobMode    `json:"mode"`
	Status        JobStatus  `json:"status"`
	PayloadJSON   string     `json:"payload_json"`
	ExportID      string     `json:"export_id,omitempty"`
	ManifestPath  string     `json:"manifest_path,omitempty"`
	VideoPath     string     `json:"video_path,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Request decodes the job payload.
func (j *ExportJob) Request() (JobRequest, error) {
	if j == nil {
		return JobRequest{}, fmt.Errorf("job is nil")
	}
	return DecodeJobRequest(j.Mode, j.PayloadJSON)
}

// JobResult carries the artifacts of a successful export.
type JobResult struct {
	ExportID     string
	ManifestPath string
	VideoPath    string
}
