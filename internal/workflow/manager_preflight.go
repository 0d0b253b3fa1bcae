package workflow

import (
	"context"
	"fmt"
	"strings"

	"pawluxe/internal/logging"
	"pawluxe/internal/preflight"
	"pawluxe/internal/services"
)

// runPreflightChecks validates directory access before any job is claimed.
// A missing ffmpeg is only a warning since jobs may opt out of rendering.
func (m *Manager) runPreflightChecks(ctx context.Context) error {
	var failures []string
	for _, r := range preflight.RunAll(ctx, m.cfg) {
		if r.Passed {
			m.logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		m.logger.Error("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported issue and restart the worker"),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "workflow", "preflight",
			strings.Join(failures, "; "), nil)
	}

	for _, status := range preflight.CheckSystemDeps(m.cfg) {
		if status.Available || !strings.Contains(status.Name, "export") {
			continue
		}
		logging.WarnWithContext(m.logger, "ffmpeg unavailable for rendering", "dependency_missing",
			logging.String("command", status.Command),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set export.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "jobs with render_video fail"),
		)
	}
	return nil
}
