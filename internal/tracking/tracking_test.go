package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pawluxe/internal/store"
)

type recordingWriter struct {
	tracks       map[string]store.Track
	observations []store.Observation
	failInsert   bool
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{tracks: make(map[string]store.Track)}
}

func (w *recordingWriter) InsertTrack(_ context.Context, track store.Track) error {
	if w.failInsert {
		return errors.New("disk full")
	}
	w.tracks[track.ID] = track
	return nil
}

func (w *recordingWriter) ExtendTrack(_ context.Context, id string, end time.Time, quality float64) error {
	track, ok := w.tracks[id]
	if !ok {
		return fmt.Errorf("track %s missing", id)
	}
	track.EndTS = end
	track.QualityScore = quality
	w.tracks[id] = track
	return nil
}

func (w *recordingWriter) InsertObservation(_ context.Context, obs store.Observation) error {
	w.observations = append(w.observations, obs)
	return nil
}

func TestObserveCreatesThenExtends(t *testing.T) {
	s := NewSession("cam-1")
	w := newRecordingWriter()
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, err := s.Observe(ctx, w, Detection{LocalTrackID: 4, ClassID: 16, Confidence: 0.9, BBox: [4]float64{1, 2, 3, 4}}, t0)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !first.New || !first.AssociationOwed {
		t.Fatalf("unexpected first result: %#v", first)
	}
	if err := s.MarkAssociated(4); err != nil {
		t.Fatalf("MarkAssociated: %v", err)
	}

	second, err := s.Observe(ctx, w, Detection{LocalTrackID: 4, ClassID: 16, Confidence: 0.6}, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if second.New || second.AssociationOwed || second.TrackID != first.TrackID {
		t.Fatalf("unexpected second result: %#v", second)
	}

	track := w.tracks[first.TrackID]
	if !track.StartTS.Equal(t0) || !track.EndTS.Equal(t0.Add(time.Second)) {
		t.Fatalf("unexpected track span %v..%v", track.StartTS, track.EndTS)
	}
	if track.QualityScore != 0.75 {
		t.Fatalf("quality = %v, want 0.75", track.QualityScore)
	}
	if track.CameraID != "cam-1" {
		t.Fatalf("unexpected camera %q", track.CameraID)
	}
	if len(w.observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(w.observations))
	}
	if w.observations[0].AppearanceRef != "src:4;class:16;conf:0.900000" {
		t.Fatalf("unexpected appearance ref %q", w.observations[0].AppearanceRef)
	}
	if w.observations[0].BBox != [4]float64{1, 2, 3, 4} {
		t.Fatalf("unexpected bbox %v", w.observations[0].BBox)
	}
}

func TestQualityIsRoundedRunningMean(t *testing.T) {
	s := NewSession("cam-1")
	w := newRecordingWriter()
	ctx := context.Background()
	now := time.Now()

	confidences := []float64{0.3, 0.7, 0.1234567}
	var id string
	for _, c := range confidences {
		res, err := s.Observe(ctx, w, Detection{LocalTrackID: 1, Confidence: c}, now)
		if err != nil {
			t.Fatalf("Observe: %v", err)
		}
		id = res.TrackID
	}
	// (0.3+0.7)/2 = 0.5, then (0.5+0.1234567)/2 = 0.31172835 -> 0.311728
	if got := w.tracks[id].QualityScore; got != 0.311728 {
		t.Fatalf("quality = %v, want 0.311728", got)
	}
}

func TestDistinctLocalIDsGetDistinctTracks(t *testing.T) {
	s := NewSession("cam-1")
	w := newRecordingWriter()
	ctx := context.Background()

	a, _ := s.Observe(ctx, w, Detection{LocalTrackID: 1, Confidence: 0.5}, time.Now())
	b, _ := s.Observe(ctx, w, Detection{LocalTrackID: 2, Confidence: 0.5}, time.Now())
	if a.TrackID == b.TrackID {
		t.Fatal("distinct local ids must map to distinct tracks")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 active tracks, got %d", s.Len())
	}
}

func TestObserveWriteFailureLeavesSessionUnchanged(t *testing.T) {
	s := NewSession("cam-1")
	w := newRecordingWriter()
	w.failInsert = true

	if _, err := s.Observe(context.Background(), w, Detection{LocalTrackID: 1}, time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if s.Len() != 0 {
		t.Fatalf("failed insert must not register a track, have %d", s.Len())
	}
	if err := s.MarkAssociated(1); err == nil {
		t.Fatal("expected error for unknown local track")
	}
}
