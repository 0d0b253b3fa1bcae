package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics tracks the export job worker.
type ExportMetrics struct {
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	excerptsTotal  *prometheus.CounterVec
	renderDuration prometheus.Histogram
}

// NewExportMetrics creates and registers export metrics.
func NewExportMetrics(registry *prometheus.Registry) (*ExportMetrics, error) {
	m := &ExportMetrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_export_jobs_total",
				Help: "Export jobs processed by outcome",
			},
			[]string{"mode", "status"}, // status: done, failed
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pawluxe_export_job_duration_seconds",
				Help:    "Wall time spent per export job",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"mode", "status"},
		),
		excerptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawluxe_export_excerpts_total",
				Help: "Excerpts written to manifests",
			},
			[]string{"mode"},
		),
		renderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pawluxe_export_render_duration_seconds",
				Help:    "Time spent rendering export videos",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordJob records the terminal outcome of one job.
func (m *ExportMetrics) RecordJob(mode, status string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(mode, status).Inc()
	m.jobDuration.WithLabelValues(mode, status).Observe(seconds)
}

// RecordExcerpts counts excerpts written for a job.
func (m *ExportMetrics) RecordExcerpts(mode string, count int) {
	if m == nil {
		return
	}
	m.excerptsTotal.WithLabelValues(mode).Add(float64(count))
}

// RecordRender observes one render duration.
func (m *ExportMetrics) RecordRender(seconds float64) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(seconds)
}

// Describe implements prometheus.Collector.
func (m *ExportMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.jobsTotal.Describe(ch)
	m.jobDuration.Describe(ch)
	m.excerptsTotal.Describe(ch)
	m.renderDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *ExportMetrics) Collect(ch chan<- prometheus.Metric) {
	m.jobsTotal.Collect(ch)
	m.jobDuration.Collect(ch)
	m.excerptsTotal.Collect(ch)
	m.renderDuration.Collect(ch)
}
