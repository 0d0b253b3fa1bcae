package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetTrack fetches a track by identifier. Missing tracks return nil, nil.
func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, camera_id, start_ts, end_ts, quality_score FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// ListTracks returns the tracks of one camera ordered by start time.
func (s *Store) ListTracks(ctx context.Context, cameraID string) ([]*Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, camera_id, start_ts, end_ts, quality_score FROM tracks WHERE camera_id = ? ORDER BY start_ts, id`,
		cameraID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*Track, error) {
	var (
		track    Track
		startRaw string
		endRaw   sql.NullString
		quality  sql.NullFloat64
	)
	if err := scanner.Scan(&track.ID, &track.CameraID, &startRaw, &endRaw, &quality); err != nil {
		return nil, err
	}
	if start, err := parseTime(startRaw); err == nil {
		track.StartTS = start
	}
	if endRaw.Valid {
		if end, err := parseTime(endRaw.String); err == nil {
			track.EndTS = end
		}
	}
	track.QualityScore = quality.Float64
	return &track, nil
}

// ObservationSpan returns the earliest and latest observation timestamps of a
// track. ok is false when the track has no observations.
func (s *Store) ObservationSpan(ctx context.Context, trackID string) (start, end time.Time, ok bool, err error) {
	var minRaw, maxRaw sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts) FROM track_observations WHERE track_id = ?`, trackID,
	).Scan(&minRaw, &maxRaw); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("observation span: %w", err)
	}
	if !minRaw.Valid || !maxRaw.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	if start, err = parseTime(minRaw.String); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("observation span start: %w", err)
	}
	if end, err = parseTime(maxRaw.String); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("observation span end: %w", err)
	}
	return start, end, true, nil
}

// ListObservations returns observations of a track in time order.
func (s *Store) ListObservations(ctx context.Context, trackID string) ([]*Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track_id, ts, bbox, appearance_ref FROM track_observations WHERE track_id = ? ORDER BY ts, id`,
		trackID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var observations []*Observation
	for rows.Next() {
		var (
			obs        Observation
			tsRaw      string
			bboxRaw    string
			appearance sql.NullString
		)
		if err := rows.Scan(&obs.ID, &obs.TrackID, &tsRaw, &bboxRaw, &appearance); err != nil {
			return nil, err
		}
		if obs.TS, err = parseTime(tsRaw); err != nil {
			return nil, fmt.Errorf("observation %s ts: %w", obs.ID, err)
		}
		if obs.BBox, err = decodeBBox(bboxRaw); err != nil {
			return nil, fmt.Errorf("observation %s: %w", obs.ID, err)
		}
		obs.AppearanceRef = appearance.String
		observations = append(observations, &obs)
	}
	return observations, rows.Err()
}

// AssociationsForGlobalID returns every association bound to a global identity key.
func (s *Store) AssociationsForGlobalID(ctx context.Context, globalID string) ([]*Association, error) {
	return s.queryAssociations(ctx,
		`SELECT id, global_track_id, track_id, label, confidence, created_at
         FROM associations WHERE global_track_id = ? ORDER BY created_at, id`, globalID)
}

// AssociationsForTrack returns the associations of one local track.
func (s *Store) AssociationsForTrack(ctx context.Context, trackID string) ([]*Association, error) {
	return s.queryAssociations(ctx,
		`SELECT id, global_track_id, track_id, label, confidence, created_at
         FROM associations WHERE track_id = ? ORDER BY created_at, id`, trackID)
}

func (s *Store) queryAssociations(ctx context.Context, query string, args ...any) ([]*Association, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query associations: %w", err)
	}
	defer rows.Close()

	var associations []*Association
	for rows.Next() {
		var (
			assoc      Association
			label      sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&assoc.ID, &assoc.GlobalTrackID, &assoc.TrackID, &label, &assoc.Confidence, &createdRaw); err != nil {
			return nil, err
		}
		assoc.Label = label.String
		if created, err := parseTime(createdRaw); err == nil {
			assoc.CreatedAt = created
		}
		associations = append(associations, &assoc)
	}
	return associations, rows.Err()
}

// GetProfile fetches a profile by global identity key. Missing profiles return nil, nil.
func (s *Store) GetProfile(ctx context.Context, globalID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT global_track_id, class_id, centroid, sample_count, updated_at
         FROM global_track_profiles WHERE global_track_id = ?`, globalID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func scanProfile(scanner interface{ Scan(dest ...any) error }) (*Profile, error) {
	var (
		profile     Profile
		centroidRaw string
		updatedRaw  string
	)
	if err := scanner.Scan(&profile.GlobalTrackID, &profile.ClassID, &centroidRaw, &profile.SampleCount, &updatedRaw); err != nil {
		return nil, err
	}
	centroid, err := decodeVector(centroidRaw)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile.GlobalTrackID, err)
	}
	profile.Centroid = centroid
	if updated, err := parseTime(updatedRaw); err == nil {
		profile.UpdatedAt = updated
	}
	return &profile, nil
}

// GetIdentity fetches an identity label. Missing labels return nil, nil.
func (s *Store) GetIdentity(ctx context.Context, label string) (*Identity, error) {
	var (
		identity   Identity
		name       sql.NullString
		auto       int
		createdRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT label, name, auto, created_at FROM identities WHERE label = ?`, label,
	).Scan(&identity.Label, &name, &auto, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	identity.Name = name.String
	identity.Auto = auto != 0
	if created, err := parseTime(createdRaw); err == nil {
		identity.CreatedAt = created
	}
	return &identity, nil
}
