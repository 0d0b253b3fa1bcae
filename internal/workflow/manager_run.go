package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"pawluxe/internal/logging"
	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

// RunOptions controls one worker session.
type RunOptions struct {
	// Once processes at most one pending job and returns.
	Once bool
}

// Result is printed when the worker exits.
type Result struct {
	ProcessedJobs int `json:"processed_jobs"`
}

// Run processes jobs until ctx is cancelled, or until one job has been
// handled (or none is pending) when opts.Once is set.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (Result, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return Result{}, errors.New("export worker already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if err := m.cfg.EnsureDirectories(); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "workflow", "ensure directories", "cannot prepare directories", err)
	}
	lock, err := m.acquireLock()
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = lock.Unlock() }()

	if err := m.runPreflightChecks(ctx); err != nil {
		return Result{}, err
	}
	m.reportStuckJobs(ctx)

	m.logger.Info("export worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.Bool("once", opts.Once),
		logging.Duration("poll_interval", m.pollInterval),
	)

	var result Result
	for {
		if ctx.Err() != nil {
			break
		}

		job, err := m.store.NextPendingJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if opts.Once {
				return result, err
			}
			m.handleNextJobError(ctx, err)
			continue
		}
		if job == nil {
			if opts.Once {
				break
			}
			m.waitForJobOrShutdown(ctx)
			continue
		}

		claimed, err := m.store.ClaimJob(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if opts.Once {
				return result, err
			}
			m.handleNextJobError(ctx, err)
			continue
		}
		if !claimed {
			m.logger.Debug("job claimed elsewhere",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.String(logging.FieldEventType, "job_claim_lost"),
			)
			continue
		}

		m.processJob(ctx, job)
		result.ProcessedJobs++
		if opts.Once {
			break
		}
	}

	m.logger.Info("export worker stopped",
		logging.String(logging.FieldEventType, "worker_stopped"),
		logging.Int("processed_jobs", result.ProcessedJobs),
	)
	return result, nil
}

func (m *Manager) acquireLock() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(m.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(m.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire export worker lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "workflow", "acquire lock",
			fmt.Sprintf("another export worker holds %s", m.lockPath), nil)
	}
	return lock, nil
}

// reportStuckJobs flags jobs left running by a worker that died mid-job.
// They are not retried automatically.
func (m *Manager) reportStuckJobs(ctx context.Context) {
	stuck, err := m.store.ListJobs(ctx, store.JobRunning)
	if err != nil {
		m.logger.Warn("failed to list running jobs", logging.Error(err))
		return
	}
	for _, job := range stuck {
		attrs := []logging.Attr{
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldGlobalTrackID, job.GlobalTrackID),
			logging.String(logging.FieldErrorHint, "resubmit the export; the previous worker stopped mid-job"),
			logging.String(logging.FieldImpact, "job stays running until resubmitted"),
		}
		if job.StartedAt != nil {
			attrs = append(attrs, logging.Duration("running_for", time.Since(*job.StartedAt).Round(time.Second)))
		}
		logging.WarnWithContext(m.logger, "job left running by a previous worker", "job_stuck", attrs...)
	}
}

func (m *Manager) handleNextJobError(ctx context.Context, err error) {
	m.logger.Error("failed to fetch next export job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	m.waitForJobOrShutdown(ctx)
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
