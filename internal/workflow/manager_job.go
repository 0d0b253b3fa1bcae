package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"pawluxe/internal/export"
	"pawluxe/internal/logging"
	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

// ErrNoExcerpts fails a job whose plan (after highlight selection) is empty.
var ErrNoExcerpts = errors.New("no excerpts available for export")

func (m *Manager) processJob(ctx context.Context, job *store.ExportJob) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, "export")
	logger := logging.WithContext(ctx, m.logger).With(
		logging.String(logging.FieldGlobalTrackID, job.GlobalTrackID),
	)
	started := time.Now()
	logger.Info("export job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("mode", string(job.Mode)),
	)

	result, err := m.executeJob(ctx, logger, job)
	elapsed := time.Since(started)

	// Outcomes are persisted even when shutdown interrupted the job.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		m.handleJobFailure(persistCtx, logger, job, result.ExportID, err)
		m.metrics.RecordJob(string(job.Mode), string(store.JobFailed), elapsed.Seconds())
		return
	}

	if err := m.store.CompleteJob(persistCtx, job.ID, result); err != nil {
		// The job must still leave running.
		m.handleJobFailure(persistCtx, logger, job, result.ExportID, fmt.Errorf("persist job completion: %w", err))
		m.metrics.RecordJob(string(job.Mode), string(store.JobFailed), elapsed.Seconds())
		return
	}
	m.metrics.RecordJob(string(job.Mode), string(store.JobDone), elapsed.Seconds())
	logger.Info("export job complete",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("export_id", result.ExportID),
		logging.String("manifest_path", result.ManifestPath),
		logging.String("video_path", result.VideoPath),
		logging.Duration("elapsed", elapsed.Round(time.Millisecond)),
	)
}

// executeJob runs the job body. The returned result carries the export id as
// soon as a manifest has been written, even when a later step fails.
func (m *Manager) executeJob(ctx context.Context, logger *slog.Logger, job *store.ExportJob) (result store.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("export job panicked",
				logging.String(logging.FieldEventType, "job_panic"),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("export job panicked: %v", r)
		}
	}()

	req, err := job.Request()
	if err != nil {
		return result, err
	}
	plan, err := m.planner.Plan(ctx, job.GlobalTrackID, export.ParamsFromRequest(req))
	if err != nil {
		return result, err
	}

	excerpts := plan.Excerpts
	summary := plan.Summary
	if req.Mode == store.ModeHighlights {
		excerpts = export.SelectHighlights(excerpts, req.TargetSeconds, req.PerClipSeconds)
		summary = summary.WithHighlights(req.TargetSeconds, req.PerClipSeconds, excerpts)
	}
	m.metrics.RecordExcerpts(string(req.Mode), len(excerpts))
	if len(excerpts) == 0 {
		return result, ErrNoExcerpts
	}

	exportID, manifestPath, err := m.manifests.Save(job.GlobalTrackID, summary, excerpts)
	if err != nil {
		return result, err
	}
	result.ExportID = exportID
	logger.Info("export manifest written",
		logging.String(logging.FieldEventType, "manifest_written"),
		logging.String("export_id", exportID),
		logging.Int("excerpts", len(excerpts)),
		logging.Float64("total_duration_sec", export.TotalDuration(excerpts)),
	)

	if req.RenderVideo {
		renderStart := time.Now()
		videoPath, err := m.renderer.Render(ctx, exportID, excerpts)
		if err != nil {
			return result, err
		}
		m.metrics.RecordRender(time.Since(renderStart).Seconds())
		result.VideoPath = videoPath
	}
	result.ManifestPath = manifestPath
	return result, nil
}
