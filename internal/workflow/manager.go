package workflow

import (
	"log/slog"
	"sync"
	"time"

	"pawluxe/internal/config"
	"pawluxe/internal/export"
	"pawluxe/internal/logging"
	"pawluxe/internal/metrics"
	"pawluxe/internal/store"
)

const minPollInterval = 200 * time.Millisecond

// Manager drains the export job queue.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	logger       *slog.Logger
	pollInterval time.Duration
	lockPath     string

	planner   *export.Planner
	manifests *export.ManifestStore
	renderer  *export.Renderer
	metrics   *metrics.ExportMetrics

	mu      sync.Mutex
	running bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records job outcomes on the given collector.
func WithMetrics(m *metrics.ExportMetrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithRenderer replaces the ffmpeg renderer built from config.
func WithRenderer(r *export.Renderer) ManagerOption {
	return func(mgr *Manager) {
		if r != nil {
			mgr.renderer = r
		}
	}
}

// WithPollInterval overrides the idle poll interval. Values below 200ms are
// raised to 200ms.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(mgr *Manager) { mgr.pollInterval = clampPoll(d) }
}

// NewManager constructs an export worker bound to the store.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "export-worker")
	m := &Manager{
		cfg:          cfg,
		store:        st,
		logger:       logger,
		pollInterval: clampPoll(time.Duration(cfg.Workflow.PollIntervalSeconds * float64(time.Second))),
		lockPath:     cfg.ExportWorkerLockPath(),
		planner:      export.NewPlanner(st),
		manifests:    export.NewManifestStore(cfg.Paths.ExportDir),
		renderer: export.NewRenderer(
			cfg.Export.FFmpegBinary,
			cfg.Paths.ExportDir,
			time.Duration(cfg.Export.RenderTimeoutSeconds)*time.Second,
			logger,
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func clampPoll(d time.Duration) time.Duration {
	if d < minPollInterval {
		return minPollInterval
	}
	return d
}
