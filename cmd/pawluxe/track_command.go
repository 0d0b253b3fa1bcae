package main

import (
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pawluxe/internal/config"
	"pawluxe/internal/ingest"
	"pawluxe/internal/metrics"
	"pawluxe/internal/store"
)

type trackFlags struct {
	cameraID          string
	identityHint      string
	streamURL         string
	detectorURL       string
	confThreshold     float64
	iouThreshold      float64
	classes           string
	frameStride       int
	commitInterval    int
	reconnectRetries  int
	reconnectDelaySec float64
	maxFrames         int
	maxSeconds        float64
	identityMode      string
	matchThreshold    float64
	fallbackLabel     string
}

func newTrackCommand(ctx *commandContext) *cobra.Command {
	var flags trackFlags

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Run the stream ingestion worker for one camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				opts := flags.options(cmd, cfg)

				detectorURL := cfg.Tracking.DetectorURL
				if cmd.Flags().Changed("detector-url") {
					detectorURL = flags.detectorURL
				}
				detector, err := ingest.NewHTTPDetector(detectorURL, time.Duration(cfg.Tracking.DetectorTimeoutSeconds)*time.Second)
				if err != nil {
					return err
				}
				capture := ingest.NewFFmpegCapture(cfg.Tracking.FFmpegBinary, cfg.Tracking.FrameWidth, cfg.Tracking.FrameHeight)

				reg, err := metrics.NewMetrics()
				if err != nil {
					return err
				}
				metricsDone := make(chan error, 1)
				go func() { metricsDone <- reg.Serve(runCtx, cfg.Metrics.Listen, logger) }()

				worker, err := ingest.NewWorker(st, capture, detector,
					ingest.WithLogger(logger),
					ingest.WithMetrics(reg.Ingest),
					ingest.WithLockPath(cfg.TrackLockPath(opts.CameraID)),
				)
				if err != nil {
					return err
				}
				summary, runErr := worker.Run(runCtx, opts)
				stop()
				if err := <-metricsDone; err != nil && runErr == nil {
					runErr = err
				}
				if runErr != nil {
					return runErr
				}
				return writeJSONLine(cmd, summary)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.cameraID, "camera-id", "", "Camera to ingest (required)")
	f.StringVar(&flags.identityHint, "animal-id", "", "Known identity label for every track of this run")
	f.StringVar(&flags.streamURL, "stream-url", "", "Override the camera's stored stream locator")
	f.StringVar(&flags.detectorURL, "detector-url", "", "Override tracking.detector_url")
	f.Float64Var(&flags.confThreshold, "conf-threshold", 0, "Minimum detection confidence")
	f.Float64Var(&flags.iouThreshold, "iou-threshold", 0, "Detector IoU threshold")
	f.StringVar(&flags.classes, "classes-csv", "", "Comma separated class ids to keep")
	f.IntVar(&flags.frameStride, "frame-stride", 0, "Process every Nth frame")
	f.IntVar(&flags.commitInterval, "commit-interval-frames", 0, "Processed frames per database commit")
	f.IntVar(&flags.reconnectRetries, "reconnect-retries", 0, "Stream reopen attempts before giving up")
	f.Float64Var(&flags.reconnectDelaySec, "reconnect-delay-seconds", 0, "Delay between reopen attempts")
	f.IntVar(&flags.maxFrames, "max-frames", 0, "Stop after this many processed frames (0 = unlimited)")
	f.Float64Var(&flags.maxSeconds, "max-seconds", 0, "Stop after this many seconds (0 = unlimited)")
	f.StringVar(&flags.identityMode, "global-id-mode", "", "Identity mode: by-identity, by-camera-track or auto-resolve")
	f.Float64Var(&flags.matchThreshold, "reid-match-threshold", 0, "Cosine similarity needed to reuse an auto-resolved identity")
	f.StringVar(&flags.fallbackLabel, "fallback-animal-id", "", "Label stored on auto-resolved associations without --animal-id")
	_ = cmd.MarkFlagRequired("camera-id")
	return cmd
}

// options starts from the [tracking] defaults and applies the flags the user
// set explicitly.
func (t *trackFlags) options(cmd *cobra.Command, cfg *config.Config) ingest.Options {
	opts := ingest.OptionsFromConfig(cfg, strings.TrimSpace(t.cameraID))
	opts.IdentityHint = t.identityHint
	opts.StreamURL = t.streamURL
	opts.MaxFrames = t.maxFrames
	opts.MaxSeconds = t.maxSeconds

	changed := cmd.Flags().Changed
	if changed("conf-threshold") {
		opts.ConfThreshold = t.confThreshold
	}
	if changed("iou-threshold") {
		opts.IoUThreshold = t.iouThreshold
	}
	if changed("classes-csv") {
		opts.Classes = t.classes
	}
	if changed("frame-stride") {
		opts.FrameStride = t.frameStride
	}
	if changed("commit-interval-frames") {
		opts.CommitInterval = t.commitInterval
	}
	if changed("reconnect-retries") {
		opts.ReconnectRetries = t.reconnectRetries
	}
	if changed("reconnect-delay-seconds") {
		opts.ReconnectDelay = time.Duration(t.reconnectDelaySec * float64(time.Second))
	}
	if changed("global-id-mode") {
		opts.IdentityMode = t.identityMode
	}
	if changed("reid-match-threshold") {
		opts.MatchThreshold = t.matchThreshold
	}
	if changed("fallback-animal-id") {
		opts.FallbackLabel = t.fallbackLabel
	}
	return opts
}
