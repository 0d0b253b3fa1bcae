package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics tracks the stream ingestion worker.
type IngestMetrics struct {
	framesTotal         *prometheus.CounterVec
	detectionsTotal     *prometheus.CounterVec
	detectorErrorsTotal *prometheus.CounterVec
	reconnectsTotal     *prometheus.CounterVec
	commitsTotal        *prometheus.CounterVec
	detectDuration      *prometheus.HistogramVec
}

// NewIngestMetrics creates and registers ingestion metrics.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_ingest_frames_total",
				Help: "Frames read from the camera stream",
			},
			[]string{"camera_id", "result"}, // result: processed, skipped
		),
		detectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_ingest_detections_total",
				Help: "Detections persisted as observations",
			},
			[]string{"camera_id"},
		),
		detectorErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_ingest_detector_errors_total",
				Help: "Frames skipped because the detector failed",
			},
			[]string{"camera_id"},
		),
		reconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_ingest_reconnects_total",
				Help: "Stream reconnect attempts",
			},
			[]string{"camera_id", "result"}, // result: success, failure
		),
		commitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_ingest_commits_total",
				Help: "Batched store commits",
			},
			[]string{"camera_id", "status"},
		),
		detectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pawluxe_ingest_detect_duration_seconds",
				Help:    "Time spent in the detector per frame",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"camera_id"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordFrame counts one frame read from the stream.
func (m *IngestMetrics) RecordFrame(cameraID string, processed bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if processed {
		result = "processed"
	}
	m.framesTotal.WithLabelValues(cameraID, result).Inc()
}

// RecordDetections counts persisted detections for one frame.
func (m *IngestMetrics) RecordDetections(cameraID string, count int, seconds float64) {
	if m == nil {
		return
	}
	m.detectionsTotal.WithLabelValues(cameraID).Add(float64(count))
	m.detectDuration.WithLabelValues(cameraID).Observe(seconds)
}

// RecordDetectorError counts a frame skipped after a detector failure.
func (m *IngestMetrics) RecordDetectorError(cameraID string) {
	if m == nil {
		return
	}
	m.detectorErrorsTotal.WithLabelValues(cameraID).Inc()
}

// RecordReconnect counts one reconnect attempt.
func (m *IngestMetrics) RecordReconnect(cameraID string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.reconnectsTotal.WithLabelValues(cameraID, result).Inc()
}

// RecordCommit counts one batch commit.
func (m *IngestMetrics) RecordCommit(cameraID string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.commitsTotal.WithLabelValues(cameraID, status).Inc()
}

// Describe implements prometheus.Collector.
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesTotal.Describe(ch)
	m.detectionsTotal.Describe(ch)
	m.detectorErrorsTotal.Describe(ch)
	m.reconnectsTotal.Describe(ch)
	m.commitsTotal.Describe(ch)
	m.detectDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.framesTotal.Collect(ch)
	m.detectionsTotal.Collect(ch)
	m.detectorErrorsTotal.Collect(ch)
	m.reconnectsTotal.Collect(ch)
	m.commitsTotal.Collect(ch)
	m.detectDuration.Collect(ch)
}
