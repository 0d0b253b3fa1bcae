package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"pawluxe/internal/identity"
	"pawluxe/internal/logging"
	"pawluxe/internal/metrics"
	"pawluxe/internal/services"
	"pawluxe/internal/store"
	"pawluxe/internal/tracking"
)

// Summary is printed when the worker exits.
type Summary struct {
	CameraID            string `json:"camera_id"`
	IdentityHint        string `json:"identity_hint"`
	ProcessedFrames     int    `json:"processed_frames"`
	TracksWritten       int    `json:"tracks_written"`
	ObservationsWritten int    `json:"observations_written"`
	AssociationsWritten int    `json:"associations_written"`
	Reconnects          int    `json:"reconnects"`
}

// Worker runs the ingestion loop for one camera.
type Worker struct {
	store    *store.Store
	capture  Capture
	detector Detector
	logger   *slog.Logger
	metrics  *metrics.IngestMetrics
	lockPath string
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customizes a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics attaches ingestion collectors.
func WithMetrics(m *metrics.IngestMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithLockPath enables the single-instance lock at path.
func WithLockPath(path string) Option {
	return func(w *Worker) { w.lockPath = strings.TrimSpace(path) }
}

// WithClock overrides the time source used for observation timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker wires a worker from its collaborators.
func NewWorker(st *store.Store, capture Capture, detector Detector, opts ...Option) (*Worker, error) {
	if st == nil || capture == nil || detector == nil {
		return nil, errors.New("ingest worker requires store, capture, and detector")
	}
	w := &Worker{
		store:    st,
		capture:  capture,
		detector: detector,
		logger:   logging.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// runState carries the mutable state of one Run.
type runState struct {
	opts     Options
	params   DetectParams
	policy   *identity.Policy
	session  *tracking.Session
	locator  string
	logger   *slog.Logger
	tx       *store.Tx
	summary  Summary
	frameIdx int64

	// failedAttempts counts stream attempts since the last delivered frame.
	// An open that yields no frame before the next read failure counts too.
	failedAttempts int
	delivered      bool
}

// Run processes the camera stream until a limit is reached, ctx is
// cancelled, or reconnecting fails. Cancellation is a normal stop.
func (w *Worker) Run(ctx context.Context, opts Options) (summary Summary, err error) {
	if err := opts.Validate(); err != nil {
		return Summary{}, err
	}
	classes, _ := ParseClasses(opts.Classes)
	policy, err := identity.NewPolicy(identity.Options{
		Mode:           identity.Mode(opts.IdentityMode),
		IdentityHint:   opts.IdentityHint,
		FallbackLabel:  opts.FallbackLabel,
		MatchThreshold: opts.MatchThreshold,
	})
	if err != nil {
		return Summary{}, err
	}

	camera, err := w.store.GetCamera(ctx, opts.CameraID)
	if err != nil {
		return Summary{}, fmt.Errorf("load camera: %w", err)
	}
	if camera == nil {
		return Summary{}, services.Wrap(services.ErrNotFound, "ingest", "load camera",
			fmt.Sprintf("camera %q not found", opts.CameraID), nil)
	}
	locator := strings.TrimSpace(opts.StreamURL)
	if locator == "" {
		locator = strings.TrimSpace(camera.StreamURL)
	}
	if locator == "" {
		return Summary{}, services.Wrap(services.ErrValidation, "ingest", "resolve stream",
			"camera has no stream url; pass --stream-url", nil)
	}

	if w.lockPath != "" {
		if err := os.MkdirAll(filepath.Dir(w.lockPath), 0o755); err != nil {
			return Summary{}, fmt.Errorf("create lock directory: %w", err)
		}
		lock := flock.New(w.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("acquire camera lock: %w", err)
		}
		if !ok {
			return Summary{}, services.Wrap(services.ErrTransient, "ingest", "acquire lock",
				fmt.Sprintf("another ingestion worker is running for camera %s", opts.CameraID), nil)
		}
		defer func() { _ = lock.Unlock() }()
	}

	ctx = services.WithCameraID(ctx, opts.CameraID)
	ctx = services.WithStage(ctx, "ingest")
	logger := logging.WithContext(ctx, w.logger)

	st := &runState{
		opts:    opts,
		params:  DetectParams{ConfThreshold: opts.ConfThreshold, IoUThreshold: opts.IoUThreshold, Classes: classes},
		policy:  policy,
		session: tracking.NewSession(opts.CameraID),
		locator: locator,
		logger:  logger,
		summary: Summary{CameraID: opts.CameraID, IdentityHint: identity.NormalizeLabel(opts.IdentityHint)},
	}

	if err := w.prepareIdentity(ctx, st); err != nil {
		return st.summary, err
	}
	if err := w.openWithRetry(ctx, st); err != nil {
		return st.summary, err
	}
	defer func() { _ = w.capture.Release() }()

	st.tx, err = w.store.Begin(ctx)
	if err != nil {
		return st.summary, err
	}
	defer func() {
		if commitErr := w.commit(st); commitErr != nil {
			err = errors.Join(err, commitErr)
		}
		logger.Info("ingestion stopped",
			logging.String(logging.FieldEventType, "ingest_stopped"),
			logging.Int("processed_frames", st.summary.ProcessedFrames),
			logging.Int("tracks_written", st.summary.TracksWritten),
			logging.Int("observations_written", st.summary.ObservationsWritten),
			logging.Int("reconnects", st.summary.Reconnects),
		)
		summary = st.summary
	}()

	logger.Info("ingestion started",
		logging.String(logging.FieldEventType, "ingest_started"),
		logging.String("identity_mode", string(policy.Mode())),
		logging.Int("frame_stride", opts.FrameStride),
		logging.Int("commit_interval", opts.CommitInterval),
	)

	started := w.now()
	for {
		if ctx.Err() != nil {
			return st.summary, nil
		}
		frame, ok := w.capture.Read(ctx)
		if !ok {
			if ctx.Err() != nil {
				return st.summary, nil
			}
			if err := w.reconnect(ctx, st); err != nil {
				if ctx.Err() != nil {
					return st.summary, nil
				}
				return st.summary, err
			}
			continue
		}
		st.delivered = true
		st.failedAttempts = 0

		if st.opts.FrameStride > 1 && st.frameIdx%int64(st.opts.FrameStride) != 0 {
			st.frameIdx++
			w.metrics.RecordFrame(opts.CameraID, false)
			continue
		}

		processed, err := w.processFrame(ctx, st, frame)
		if err != nil {
			if ctx.Err() != nil {
				return st.summary, nil
			}
			return st.summary, err
		}
		st.frameIdx++
		w.metrics.RecordFrame(opts.CameraID, processed)
		if !processed {
			continue
		}
		st.summary.ProcessedFrames++

		if st.summary.ProcessedFrames%st.opts.CommitInterval == 0 {
			if err := w.commit(st); err != nil {
				return st.summary, err
			}
			if ctx.Err() != nil {
				return st.summary, nil
			}
			if st.tx, err = w.store.Begin(ctx); err != nil {
				return st.summary, err
			}
		}

		if opts.MaxFrames > 0 && st.summary.ProcessedFrames >= opts.MaxFrames {
			return st.summary, nil
		}
		if opts.MaxSeconds > 0 && w.now().Sub(started).Seconds() >= opts.MaxSeconds {
			return st.summary, nil
		}
	}
}

// processFrame runs detection and persists the results. It reports false when
// the frame was skipped because the detector failed.
func (w *Worker) processFrame(ctx context.Context, st *runState, frame Frame) (bool, error) {
	now := w.now()
	began := time.Now()
	dets, err := w.detector.Detect(ctx, frame, st.params)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		w.metrics.RecordDetectorError(st.opts.CameraID)
		st.logger.Warn("detector failed; frame skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "detector_failed"),
			logging.String(logging.FieldErrorHint, "check the detector service"),
			logging.Int64("frame_index", st.frameIdx),
		)
		return false, nil
	}
	dets = filterDetections(dets, st.params)
	w.metrics.RecordDetections(st.opts.CameraID, len(dets), time.Since(began).Seconds())

	for _, det := range dets {
		observed, err := st.session.Observe(ctx, st.tx, det, now)
		if err != nil {
			return false, fmt.Errorf("record detection: %w", err)
		}
		st.summary.ObservationsWritten++
		if observed.New {
			st.summary.TracksWritten++
		}
		if !observed.AssociationOwed {
			continue
		}
		assignment, err := st.policy.Assign(ctx, st.tx, identity.Input{
			CameraID:     st.opts.CameraID,
			LocalTrackID: det.LocalTrackID,
			TrackID:      observed.TrackID,
			ClassID:      det.ClassID,
			Confidence:   det.Confidence,
			Embedding:    det.Embedding,
			At:           now,
		})
		if err != nil {
			return false, fmt.Errorf("assign identity: %w", err)
		}
		if err := st.session.MarkAssociated(det.LocalTrackID); err != nil {
			return false, err
		}
		st.summary.AssociationsWritten++
		st.logger.Debug("track associated",
			logging.String(logging.FieldGlobalTrackID, assignment.GlobalTrackID),
			logging.String("track_id", observed.TrackID),
			logging.Int("local_track_id", det.LocalTrackID),
			logging.Bool("profile_created", assignment.Created),
		)
	}
	return true, nil
}

func (w *Worker) prepareIdentity(ctx context.Context, st *runState) error {
	if st.policy.Label() == "" {
		return nil
	}
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := st.policy.EnsureLabel(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// reconnect commits the open batch, releases the stream and opens it again.
// A read failure right after an open that delivered nothing uses up one
// attempt, so a stream that accepts connections but never produces frames
// still exhausts the retries.
func (w *Worker) reconnect(ctx context.Context, st *runState) error {
	if err := w.commit(st); err != nil {
		return err
	}
	_ = w.capture.Release()
	if !st.delivered {
		st.failedAttempts++
		w.metrics.RecordReconnect(st.opts.CameraID, false)
	}
	st.summary.Reconnects++
	st.logger.Warn("stream read failed; reconnecting",
		logging.String(logging.FieldEventType, "stream_reconnect"),
		logging.Int("reconnects", st.summary.Reconnects),
		logging.Int("failed_attempts", st.failedAttempts),
	)
	if err := w.openWithRetry(ctx, st); err != nil {
		return err
	}
	var err error
	st.tx, err = w.store.Begin(ctx)
	return err
}

// openWithRetry opens the stream, sharing max(retries, 1) attempts with the
// read failures recorded since the last delivered frame. Attempts after a
// failure wait for the reconnect delay.
func (w *Worker) openWithRetry(ctx context.Context, st *runState) error {
	attempts := max(st.opts.ReconnectRetries, 1)
	var lastErr error
	for st.failedAttempts < attempts {
		if st.failedAttempts > 0 {
			if err := w.sleep(ctx, st.opts.ReconnectDelay); err != nil {
				return err
			}
		}
		err := w.capture.Open(ctx, st.locator)
		if err == nil {
			if st.summary.Reconnects > 0 {
				w.metrics.RecordReconnect(st.opts.CameraID, true)
			}
			st.delivered = false
			return nil
		}
		lastErr = err
		st.failedAttempts++
		_ = w.capture.Release()
		w.metrics.RecordReconnect(st.opts.CameraID, false)
		st.logger.Warn("stream open failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stream_open_failed"),
			logging.Int("attempt", st.failedAttempts),
			logging.Int("max_attempts", attempts),
		)
	}
	msg := fmt.Sprintf("unable to read stream after %d attempts", attempts)
	if lastErr == nil {
		lastErr = errors.New("stream opened but delivered no frames")
	}
	return services.Wrap(services.ErrTransient, "ingest", "open stream", msg, lastErr)
}

func (w *Worker) commit(st *runState) error {
	if st.tx == nil {
		return nil
	}
	err := st.tx.Commit()
	st.tx = nil
	w.metrics.RecordCommit(st.opts.CameraID, err)
	if err != nil {
		st.logger.Error("batch commit failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "commit_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
