package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"pawluxe/internal/config"
	"pawluxe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedCamera registers a camera with the given id.
func SeedCamera(t testing.TB, st *store.Store, id, streamURL string) *store.Camera {
	t.Helper()

	camera, err := st.AddCamera(context.Background(), store.Camera{ID: id, LocationZone: "yard", StreamURL: streamURL})
	if err != nil {
		t.Fatalf("AddCamera: %v", err)
	}
	return camera
}

// SeedSegment records a closed media segment for a camera.
func SeedSegment(t testing.TB, st *store.Store, cameraID, path string, start, end time.Time) *store.MediaSegment {
	t.Helper()

	segment, err := st.AddSegment(context.Background(), store.MediaSegment{
		CameraID: cameraID,
		StartTS:  start,
		EndTS:    end,
		Path:     path,
		Codec:    "h264",
	})
	if err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	return segment
}

// SeedTrack writes a track with one observation per timestamp and, when
// globalID is non-empty, an association to that key. It returns the track id.
func SeedTrack(t testing.TB, st *store.Store, cameraID, globalID string, observed ...time.Time) string {
	t.Helper()

	ctx := context.Background()
	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	trackID := uuid.NewString()
	track := store.Track{ID: trackID, CameraID: cameraID, QualityScore: 0.9}
	if len(observed) > 0 {
		track.StartTS = observed[0]
		track.EndTS = observed[len(observed)-1]
	} else {
		track.StartTS = time.Now().UTC()
	}
	if err := tx.InsertTrack(ctx, track); err != nil {
		t.Fatalf("InsertTrack: %v", err)
	}
	for _, ts := range observed {
		if err := tx.InsertObservation(ctx, store.Observation{
			ID:      uuid.NewString(),
			TrackID: trackID,
			TS:      ts,
			BBox:    [4]float64{10, 20, 110, 220},
		}); err != nil {
			t.Fatalf("InsertObservation: %v", err)
		}
	}
	if globalID != "" {
		if err := tx.InsertAssociation(ctx, store.Association{
			ID:            uuid.NewString(),
			GlobalTrackID: globalID,
			TrackID:       trackID,
			Confidence:    0.9,
			CreatedAt:     track.StartTS,
		}); err != nil {
			t.Fatalf("InsertAssociation: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return trackID
}
