// Package tracking turns per-frame detections into persisted tracks and
// observations for one camera session.
package tracking

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

// Detection is one object reported by the detector for a frame.
type Detection struct {
	LocalTrackID int        `json:"track_id"`
	ClassID      int        `json:"class_id"`
	Confidence   float64    `json:"confidence"`
	BBox         [4]float64 `json:"bbox"`
	Embedding    []float64  `json:"embedding,omitempty"`
}

// Writer is the slice of a store transaction the session writes through.
type Writer interface {
	InsertTrack(ctx context.Context, track store.Track) error
	ExtendTrack(ctx context.Context, trackID string, end time.Time, quality float64) error
	InsertObservation(ctx context.Context, obs store.Observation) error
}

// Observed reports what one detection did to the session.
type Observed struct {
	TrackID         string
	New             bool
	AssociationOwed bool
}

type activeTrack struct {
	id         string
	start      time.Time
	end        time.Time
	quality    float64
	associated bool
}

// Session holds the active tracks of one camera keyed by local track id.
// It is not safe for concurrent use.
type Session struct {
	cameraID string
	active   map[int]*activeTrack
	newID    func() string
}

// NewSession creates an empty session for a camera.
func NewSession(cameraID string) *Session {
	return &Session{
		cameraID: cameraID,
		active:   make(map[int]*activeTrack),
		newID:    uuid.NewString,
	}
}

// CameraID returns the camera this session belongs to.
func (s *Session) CameraID() string {
	return s.cameraID
}

// Len returns the number of tracks seen in this session.
func (s *Session) Len() int {
	return len(s.active)
}

// Observe records one detection at now.
func (s *Session) Observe(ctx context.Context, w Writer, det Detection, now time.Time) (Observed, error) {
	if w == nil {
		return Observed{}, services.Wrap(services.ErrConfiguration, "tracking", "observe", "writer unavailable", nil)
	}
	now = now.UTC()

	track, ok := s.active[det.LocalTrackID]
	result := Observed{}
	if !ok {
		track = &activeTrack{
			id:      s.newID(),
			start:   now,
			end:     now,
			quality: det.Confidence,
		}
		if err := w.InsertTrack(ctx, store.Track{
			ID:           track.id,
			CameraID:     s.cameraID,
			StartTS:      track.start,
			EndTS:        track.end,
			QualityScore: track.quality,
		}); err != nil {
			return Observed{}, err
		}
		s.active[det.LocalTrackID] = track
		result.New = true
	} else {
		quality := round6((track.quality + det.Confidence) / 2)
		if err := w.ExtendTrack(ctx, track.id, now, quality); err != nil {
			return Observed{}, err
		}
		track.end = now
		track.quality = quality
	}

	if err := w.InsertObservation(ctx, store.Observation{
		ID:            s.newID(),
		TrackID:       track.id,
		TS:            now,
		BBox:          det.BBox,
		AppearanceRef: AppearanceRef(det),
	}); err != nil {
		return Observed{}, err
	}

	result.TrackID = track.id
	result.AssociationOwed = !track.associated
	return result, nil
}

// MarkAssociated records that the association for a local track was written.
func (s *Session) MarkAssociated(localTrackID int) error {
	track, ok := s.active[localTrackID]
	if !ok {
		return fmt.Errorf("local track %d not active", localTrackID)
	}
	track.associated = true
	return nil
}

// AppearanceRef formats the compact appearance reference stored with each observation.
func AppearanceRef(det Detection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "src:%d;class:%d;conf:%.6f", det.LocalTrackID, det.ClassID, det.Confidence)
	return b.String()
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
