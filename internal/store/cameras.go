package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pawluxe/internal/services"
)

// AddCamera registers a camera. An empty ID is replaced with a generated one.
func (s *Store) AddCamera(ctx context.Context, camera Camera) (*Camera, error) {
	camera.ID = strings.TrimSpace(camera.ID)
	if camera.ID == "" {
		camera.ID = uuid.NewString()
	}
	camera.LocationZone = strings.TrimSpace(camera.LocationZone)
	camera.StreamURL = strings.TrimSpace(camera.StreamURL)
	if camera.CreatedAt.IsZero() {
		camera.CreatedAt = time.Now().UTC()
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO cameras (id, location_zone, stream_url, created_at) VALUES (?, ?, ?, ?)`,
		camera.ID, camera.LocationZone, nullableString(camera.StreamURL), formatTime(camera.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert camera: %w", err)
	}
	return &camera, nil
}

// GetCamera fetches a camera by identifier. Missing cameras return nil, nil.
func (s *Store) GetCamera(ctx context.Context, id string) (*Camera, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, location_zone, stream_url, created_at FROM cameras WHERE id = ?`, id)
	camera, err := scanCamera(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return camera, nil
}

// ListCameras returns every camera ordered by identifier.
func (s *Store) ListCameras(ctx context.Context) ([]*Camera, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location_zone, stream_url, created_at FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []*Camera
	for rows.Next() {
		camera, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, camera)
	}
	return cameras, rows.Err()
}

func scanCamera(scanner interface{ Scan(dest ...any) error }) (*Camera, error) {
	var (
		camera     Camera
		streamURL  sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&camera.ID, &camera.LocationZone, &streamURL, &createdRaw); err != nil {
		return nil, err
	}
	camera.StreamURL = streamURL.String
	if created, err := parseTime(createdRaw); err == nil {
		camera.CreatedAt = created
	}
	return &camera, nil
}

// AddSegment records a media segment produced by the recorder.
func (s *Store) AddSegment(ctx context.Context, segment MediaSegment) (*MediaSegment, error) {
	segment.ID = strings.TrimSpace(segment.ID)
	if segment.ID == "" {
		segment.ID = uuid.NewString()
	}
	segment.Path = strings.TrimSpace(segment.Path)
	if segment.Path == "" {
		return nil, services.Wrap(services.ErrValidation, "segment", "add", "segment path is required", nil)
	}
	if segment.StartTS.IsZero() {
		return nil, services.Wrap(services.ErrValidation, "segment", "add", "segment start is required", nil)
	}
	if !segment.EndTS.IsZero() && !segment.EndTS.After(segment.StartTS) {
		return nil, services.Wrap(services.ErrValidation, "segment", "add", "segment end must be after start", nil)
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO media_segments (id, camera_id, start_ts, end_ts, path, codec) VALUES (?, ?, ?, ?, ?, ?)`,
		segment.ID, segment.CameraID, formatTime(segment.StartTS), nullableTime(segment.EndTS),
		segment.Path, nullableString(segment.Codec),
	); err != nil {
		return nil, fmt.Errorf("insert segment: %w", err)
	}
	return &segment, nil
}

// ListSegments returns segments for one camera, or all cameras when cameraID is empty.
func (s *Store) ListSegments(ctx context.Context, cameraID string) ([]*MediaSegment, error) {
	query := `SELECT id, camera_id, start_ts, end_ts, path, codec FROM media_segments`
	var args []any
	if cameraID != "" {
		query += ` WHERE camera_id = ?`
		args = append(args, cameraID)
	}
	query += ` ORDER BY start_ts, id`
	return s.querySegments(ctx, query, args...)
}

// SegmentsOverlapping returns closed segments of a camera whose interval
// overlaps [start, end). Open segments (no end timestamp) are skipped.
func (s *Store) SegmentsOverlapping(ctx context.Context, cameraID string, start, end time.Time) ([]*MediaSegment, error) {
	return s.querySegments(ctx,
		`SELECT id, camera_id, start_ts, end_ts, path, codec FROM media_segments
         WHERE camera_id = ? AND end_ts IS NOT NULL AND start_ts < ? AND end_ts > ?
         ORDER BY start_ts, id`,
		cameraID, formatTime(end), formatTime(start),
	)
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]*MediaSegment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*MediaSegment
	for rows.Next() {
		var (
			segment  MediaSegment
			startRaw string
			endRaw   sql.NullString
			codec    sql.NullString
		)
		if err := rows.Scan(&segment.ID, &segment.CameraID, &startRaw, &endRaw, &segment.Path, &codec); err != nil {
			return nil, err
		}
		start, err := parseTime(startRaw)
		if err != nil {
			return nil, fmt.Errorf("segment %s start: %w", segment.ID, err)
		}
		segment.StartTS = start
		if endRaw.Valid {
			if end, err := parseTime(endRaw.String); err == nil {
				segment.EndTS = end
			}
		}
		segment.Codec = codec.String
		segments = append(segments, &segment)
	}
	return segments, rows.Err()
}
