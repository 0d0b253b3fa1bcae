package workflow_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/goleak"

	"pawluxe/internal/config"
	"pawluxe/internal/export"
	"pawluxe/internal/logging"
	"pawluxe/internal/services"
	"pawluxe/internal/store"
	"pawluxe/internal/testsupport"
	"pawluxe/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)

type fixture struct {
	cfg *config.Config
	st  *store.Store
	mgr *workflow.Manager
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)

	testsupport.SeedCamera(t, st, "yard", "")
	segPath := testsupport.WriteSegmentFile(t, filepath.Join(testsupport.BaseDir(cfg), "segments"), "yard-0001.mp4", 32)
	testsupport.SeedSegment(t, st, "yard", segPath, t0, t0.Add(60*time.Second))
	testsupport.SeedTrack(t, st, "yard", "animal:Luna", t0.Add(5*time.Second), t0.Add(10*time.Second))
	testsupport.SeedTrack(t, st, "yard", "animal:Luna", t0.Add(30*time.Second), t0.Add(40*time.Second))

	return fixture{cfg: cfg, st: st, mgr: workflow.NewManager(cfg, st, logging.NewNop())}
}

func (f fixture) submit(t *testing.T, globalID string, mutate func(*store.JobRequest)) *store.ExportJob {
	t.Helper()
	req := store.DefaultJobRequest()
	if mutate != nil {
		mutate(&req)
	}
	job, err := f.st.SubmitJob(context.Background(), globalID, req)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	return job
}

func (f fixture) runOnce(t *testing.T) workflow.Result {
	t.Helper()
	res, err := f.mgr.Run(context.Background(), workflow.RunOptions{Once: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func (f fixture) job(t *testing.T, id int64) *store.ExportJob {
	t.Helper()
	job, err := f.st.GetJob(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("GetJob(%d): %v", id, err)
	}
	return job
}

func TestRunOnceWritesManifestWithoutVideo(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "animal:Luna", func(r *store.JobRequest) { r.RenderVideo = false })

	if res := f.runOnce(t); res.ProcessedJobs != 1 {
		t.Fatalf("expected 1 processed job, got %d", res.ProcessedJobs)
	}
	got := f.job(t, job.ID)
	if got.Status != store.JobDone {
		t.Fatalf("expected done, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.ExportID == "" || got.VideoPath != "" || got.FinishedAt == nil {
		t.Fatalf("unexpected job record %+v", got)
	}
	if got.ManifestPath != filepath.Join(f.cfg.Paths.ExportDir, got.ExportID+".json") {
		t.Fatalf("unexpected manifest path %s", got.ManifestPath)
	}

	manifest, err := export.NewManifestStore(f.cfg.Paths.ExportDir).Load(got.ExportID)
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	if manifest.GlobalTrackID != "animal:Luna" || len(manifest.Excerpts) != 2 {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	if manifest.Summary.Mode != "" || manifest.Summary.HighlightExcerptCount != nil {
		t.Fatalf("full export carries highlight fields: %+v", manifest.Summary)
	}
}

func TestRunOnceHighlightsRendersVideo(t *testing.T) {
	f := newFixture(t, testsupport.WithStubScript("ffmpeg", testsupport.OutputWritingFFmpeg))
	job := f.submit(t, "animal:Luna", func(r *store.JobRequest) {
		r.Mode = store.ModeHighlights
		r.TargetSeconds = 3
		r.PerClipSeconds = 4
	})

	f.runOnce(t)
	got := f.job(t, job.ID)
	if got.Status != store.JobDone {
		t.Fatalf("expected done, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.VideoPath != filepath.Join(f.cfg.Paths.ExportDir, got.ExportID+".mp4") {
		t.Fatalf("unexpected video path %s", got.VideoPath)
	}
	if _, err := os.Stat(got.VideoPath); err != nil {
		t.Fatalf("video missing: %v", err)
	}

	manifest, err := export.NewManifestStore(f.cfg.Paths.ExportDir).Load(got.ExportID)
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	s := manifest.Summary
	if s.Mode != "highlights" || s.HighlightExcerptCount == nil || *s.HighlightExcerptCount != 1 {
		t.Fatalf("unexpected highlight summary %+v", s)
	}
	if len(manifest.Excerpts) != 1 || manifest.Excerpts[0].DurationSeconds != 4 {
		t.Fatalf("expected one trimmed excerpt, got %+v", manifest.Excerpts)
	}
}

func TestRunOnceFailsWhenNoExcerpts(t *testing.T) {
	f := newFixture(t)
	testsupport.SeedCamera(t, f.st, "porch", "")
	testsupport.SeedTrack(t, f.st, "porch", "camera:porch:3", t0.Add(time.Second))
	job := f.submit(t, "camera:porch:3", nil)

	f.runOnce(t)
	got := f.job(t, job.ID)
	if got.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != workflow.ErrNoExcerpts.Error() {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
	if got.ExportID != "" || got.ManifestPath != "" {
		t.Fatalf("no manifest should be recorded: %+v", got)
	}
}

func TestRunOnceUnknownIdentityFails(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "animal:Ghost", nil)

	f.runOnce(t)
	got := f.job(t, job.ID)
	if got.Status != store.JobFailed || got.ErrorMessage == "" {
		t.Fatalf("expected failure with message, got %+v", got)
	}
}

func TestRenderFailureKeepsManifest(t *testing.T) {
	f := newFixture(t, testsupport.WithStubScript("ffmpeg", "echo broken >&2\nexit 1"))
	job := f.submit(t, "animal:Luna", nil)

	f.runOnce(t)
	got := f.job(t, job.ID)
	if got.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ExportID == "" {
		t.Fatal("expected export id recorded on render failure")
	}
	if got.ManifestPath != "" || got.VideoPath != "" {
		t.Fatalf("artifact paths must stay unset on failure: %+v", got)
	}
	manifestPath, videoPath := export.NewManifestStore(f.cfg.Paths.ExportDir).PathsFor(got.ExportID)
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("manifest should remain on disk: %v", err)
	}
	if _, err := os.Stat(videoPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no video expected: %v", err)
	}
}

func TestRunOnceProcessesOldestJobOnly(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, "animal:Luna", func(r *store.JobRequest) { r.RenderVideo = false })
	second := f.submit(t, "animal:Luna", func(r *store.JobRequest) { r.RenderVideo = false })

	f.runOnce(t)
	if got := f.job(t, first.ID); got.Status != store.JobDone {
		t.Fatalf("first job: %s", got.Status)
	}
	if got := f.job(t, second.ID); got.Status != store.JobPending {
		t.Fatalf("second job should still be pending, got %s", got.Status)
	}
}

func TestRunOnceWithEmptyQueue(t *testing.T) {
	f := newFixture(t)
	if res := f.runOnce(t); res.ProcessedJobs != 0 {
		t.Fatalf("expected 0 processed, got %d", res.ProcessedJobs)
	}
}

func TestRunningJobsAreLeftAlone(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "animal:Luna", nil)
	if ok, err := f.st.ClaimJob(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("ClaimJob: ok=%v err=%v", ok, err)
	}

	if res := f.runOnce(t); res.ProcessedJobs != 0 {
		t.Fatalf("expected 0 processed, got %d", res.ProcessedJobs)
	}
	if got := f.job(t, job.ID); got.Status != store.JobRunning {
		t.Fatalf("stuck job should stay running, got %s", got.Status)
	}
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	other := flock.New(f.cfg.ExportWorkerLockPath())
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = other.Unlock() }()

	_, err := f.mgr.Run(context.Background(), workflow.RunOptions{Once: true})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestRunLoopsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.mgr = workflow.NewManager(f.cfg, f.st, logging.NewNop(), workflow.WithPollInterval(10*time.Millisecond))
	first := f.submit(t, "animal:Luna", func(r *store.JobRequest) { r.RenderVideo = false })
	second := f.submit(t, "animal:Ghost", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type outcome struct {
		res workflow.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.mgr.Run(ctx, workflow.RunOptions{})
		done <- outcome{res, err}
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		stats, err := f.st.JobStats(context.Background())
		if err != nil {
			t.Fatalf("JobStats: %v", err)
		}
		if stats[store.JobDone]+stats[store.JobFailed] == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs not processed in time: %v", stats)
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("Run: %v", out.err)
		}
		if out.res.ProcessedJobs != 2 {
			t.Fatalf("expected 2 processed, got %d", out.res.ProcessedJobs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	if got := f.job(t, first.ID); got.Status != store.JobDone {
		t.Fatalf("first job: %s", got.Status)
	}
	if got := f.job(t, second.ID); got.Status != store.JobFailed {
		t.Fatalf("second job: %s", got.Status)
	}
}

func TestRunOnceFailsJobWhenCompletionCannotBePersisted(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "animal:Luna", func(r *store.JobRequest) { r.RenderVideo = false })

	db, err := sql.Open("sqlite", f.cfg.Paths.DatabasePath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(`CREATE TRIGGER reject_done BEFORE UPDATE OF status ON export_jobs
        WHEN NEW.status = 'done' BEGIN SELECT RAISE(ABORT, 'disk is full'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	f.runOnce(t)
	got := f.job(t, job.ID)
	if got.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ExportID == "" || got.ManifestPath != "" || got.FinishedAt == nil {
		t.Fatalf("unexpected job record %+v", got)
	}
	if !strings.Contains(got.ErrorMessage, "persist job completion") || !strings.Contains(got.ErrorMessage, "disk is full") {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
}
