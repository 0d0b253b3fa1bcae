package workflow

import (
	"context"
	"log/slog"
	"strings"

	"pawluxe/internal/logging"
	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

func (m *Manager) handleJobFailure(ctx context.Context, logger *slog.Logger, job *store.ExportJob, exportID string, jobErr error) {
	message := classifyJobFailure(jobErr)
	logger.Error("export job failed",
		logging.Error(jobErr),
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldErrorKind, services.ErrorKind(jobErr)),
		logging.String(logging.FieldErrorHint, failureHint(jobErr)),
		logging.String("export_id", exportID),
	)
	if err := m.store.FailJob(ctx, job.ID, exportID, message); err != nil {
		logger.Error("failed to persist job failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_persist_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
}

func classifyJobFailure(err error) string {
	if err == nil {
		return "export failed without error detail"
	}
	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return "export failed"
}

func failureHint(err error) string {
	switch services.ErrorKind(err) {
	case "not_found":
		return "check that tracks are associated with this global track id"
	case "external_tool":
		return "check ffmpeg availability and segment files"
	case "timeout":
		return "raise export.render_timeout_seconds or shorten the export"
	case "validation":
		return "check the job payload"
	default:
		return "check logs for details"
	}
}
