package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawluxe/internal/services"
)

const jobColumns = "id, global_track_id, mode, status, payload_json, export_id, manifest_path, video_path, error_message, created_at, started_at, finished_at, updated_at"

// SubmitJob validates the request and enqueues a pending export job.
func (s *Store) SubmitJob(ctx context.Context, globalID string, req JobRequest) (*ExportJob, error) {
	globalID = strings.TrimSpace(globalID)
	if globalID == "" {
		return nil, services.Wrap(services.ErrValidation, "export", "submit", "global track id is required", nil)
	}
	mode, err := ParseJobMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	req.Mode = mode
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	timestamp := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`INSERT INTO export_jobs (global_track_id, mode, status, payload_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		globalID, mode, JobPending, string(payload), timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Missing jobs return nil, nil.
func (s *Store) GetJob(ctx context.Context, id int64) (*ExportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status (all when none given), oldest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*ExportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextPendingJob returns the oldest pending job, or nil when the queue is idle.
func (s *Store) NextPendingJob(ctx context.Context) (*ExportJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM export_jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		JobPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically moves a pending job to running, clearing any previous
// error. It reports false when another worker claimed the job first.
func (s *Store) ClaimJob(ctx context.Context, id int64) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs
         SET status = ?, started_at = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobRunning, now, now, id, JobPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job rows affected: %w", err)
	}
	return n == 1, nil
}

// CompleteJob marks a running job done and records its artifacts.
func (s *Store) CompleteJob(ctx context.Context, id int64, result JobResult) error {
	if strings.TrimSpace(result.ManifestPath) == "" {
		return errors.New("complete job: manifest path is required")
	}
	now := formatTime(time.Now())
	return s.finishJob(ctx, id,
		`UPDATE export_jobs
         SET status = ?, export_id = ?, manifest_path = ?, video_path = ?, error_message = NULL,
             finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobDone, nullableString(result.ExportID), result.ManifestPath, nullableString(result.VideoPath),
		now, now, id, JobRunning,
	)
}

// FailJob marks a running job failed. exportID is recorded when a manifest was
// already written; artifact paths stay unset.
func (s *Store) FailJob(ctx context.Context, id int64, exportID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "export failed"
	}
	now := formatTime(time.Now())
	return s.finishJob(ctx, id,
		`UPDATE export_jobs
         SET status = ?, export_id = ?, manifest_path = NULL, video_path = NULL, error_message = ?,
             finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobFailed, nullableString(exportID), message, now, now, id, JobRunning,
	)
}

func (s *Store) finishJob(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job %d rows affected: %w", id, err)
	}
	if n == 0 {
		return services.Wrap(services.ErrNotFound, "export", "finish job", fmt.Sprintf("job %d is not running", id), nil)
	}
	return nil
}

// JobStats returns a count of jobs grouped by status.
func (s *Store) JobStats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM export_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*ExportJob, error) {
	var (
		job          ExportJob
		mode         string
		status       string
		exportID     sql.NullString
		manifestPath sql.NullString
		videoPath    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.GlobalTrackID,
		&mode,
		&status,
		&job.PayloadJSON,
		&exportID,
		&manifestPath,
		&videoPath,
		&errorMessage,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Mode = JobMode(mode)
	job.Status = JobStatus(status)
	job.ExportID = exportID.String
	job.ManifestPath = manifestPath.String
	job.VideoPath = videoPath.String
	job.ErrorMessage = errorMessage.String
	if created, err := parseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseOptionalTime(startedRaw)
	job.FinishedAt = parseOptionalTime(finishedRaw)
	return &job, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTime(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
