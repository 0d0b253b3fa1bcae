package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngestMetricsCounters(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.Ingest.RecordFrame("cam-1", true)
	m.Ingest.RecordFrame("cam-1", true)
	m.Ingest.RecordFrame("cam-1", false)
	m.Ingest.RecordDetections("cam-1", 3, 0.02)
	m.Ingest.RecordReconnect("cam-1", false)
	m.Ingest.RecordCommit("cam-1", errors.New("busy"))

	if got := testutil.ToFloat64(m.Ingest.framesTotal.WithLabelValues("cam-1", "processed")); got != 2 {
		t.Fatalf("processed frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Ingest.framesTotal.WithLabelValues("cam-1", "skipped")); got != 1 {
		t.Fatalf("skipped frames = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Ingest.detectionsTotal.WithLabelValues("cam-1")); got != 3 {
		t.Fatalf("detections = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Ingest.reconnectsTotal.WithLabelValues("cam-1", "failure")); got != 1 {
		t.Fatalf("reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Ingest.commitsTotal.WithLabelValues("cam-1", "error")); got != 1 {
		t.Fatalf("commit errors = %v, want 1", got)
	}
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var ingest *IngestMetrics
	var export *ExportMetrics
	ingest.RecordFrame("cam", true)
	ingest.RecordDetectorError("cam")
	export.RecordJob("full", "done", 1)
	export.RecordRender(1)
}

func TestHandlerExposesExportMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.Export.RecordJob("highlights", "done", 0.5)
	m.Export.RecordExcerpts("highlights", 4)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		`pawluxe_export_jobs_total{mode="highlights",status="done"} 1`,
		`pawluxe_export_excerpts_total{mode="highlights"} 4`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestServeDisabledWithoutAddress(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if err := m.Serve(context.Background(), "", nil); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
