package export_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pawluxe/internal/export"
	"pawluxe/internal/logging"
	"pawluxe/internal/services"
	"pawluxe/internal/testsupport"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  int
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{name: name, args: append([]string(nil), args...)})
	if f.fail > 0 && len(f.calls) == f.fail {
		return errors.New("exit status 1: boom")
	}
	return os.WriteFile(args[len(args)-1], []byte("video"), 0o644)
}

func renderFixture(t *testing.T) (string, []export.Excerpt) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg"))
	base := testsupport.BaseDir(cfg)
	seg := testsupport.WriteSegmentFile(t, filepath.Join(base, "segments"), "it's.mp4", 16)
	start := time.Date(2026, 3, 14, 9, 0, 1, 0, time.UTC)
	excerpts := []export.Excerpt{
		{CameraID: "cam1", SegmentID: "s1", SegmentPath: seg, ClipStart: start, ClipEnd: start.Add(4 * time.Second), OffsetSeconds: 1, DurationSeconds: 4},
		{CameraID: "cam1", SegmentID: "s1", SegmentPath: seg, ClipStart: start.Add(10 * time.Second), ClipEnd: start.Add(12 * time.Second), OffsetSeconds: 11, DurationSeconds: 2},
	}
	return cfg.Paths.ExportDir, excerpts
}

func TestRendererCutsAndConcatenates(t *testing.T) {
	dir, excerpts := renderFixture(t)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	r := export.NewRenderer("ffmpeg", dir, time.Minute, logging.NewNop())
	r.WithCommandRunner(runner.run)

	out, err := r.Render(context.Background(), "exp1", excerpts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != filepath.Join(dir, "exp1.mp4") {
		t.Fatalf("unexpected output %s", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exp1.work")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("work dir not cleaned: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("expected 3 ffmpeg calls, got %d", len(runner.calls))
	}
	first := strings.Join(runner.calls[0].args, " ")
	if !strings.Contains(first, "-ss 1.000") || !strings.Contains(first, "-t 4.000") {
		t.Fatalf("unexpected cut args: %s", first)
	}
	concat := strings.Join(runner.calls[2].args, " ")
	if !strings.Contains(concat, "-f concat") || !strings.Contains(concat, "-c copy") {
		t.Fatalf("unexpected concat args: %s", concat)
	}
}

func TestRendererFailureIsExternalToolError(t *testing.T) {
	dir, excerpts := renderFixture(t)
	runner := &fakeRunner{fail: 2}
	r := export.NewRenderer("ffmpeg", dir, 0, logging.NewNop())
	r.WithCommandRunner(runner.run)

	_, err := r.Render(context.Background(), "exp2", excerpts)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "exp2.mp4")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("partial output left behind: %v", statErr)
	}
}

func TestRendererWithStubFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubScript("ffmpeg", testsupport.OutputWritingFFmpeg))
	base := testsupport.BaseDir(cfg)
	seg := testsupport.WriteSegmentFile(t, base, "seg.mp4", 8)
	start := time.Now().UTC()
	excerpts := []export.Excerpt{{SegmentID: "s1", SegmentPath: seg, ClipStart: start, ClipEnd: start.Add(time.Second), DurationSeconds: 1}}

	r := export.NewRenderer("", cfg.Paths.ExportDir, time.Minute, logging.NewNop())
	out, err := r.Render(context.Background(), "exp3", excerpts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "stub" {
		t.Fatalf("unexpected output %q err=%v", data, err)
	}
}

func TestRendererRejectsMissingInputs(t *testing.T) {
	dir, excerpts := renderFixture(t)
	r := export.NewRenderer("ffmpeg", dir, 0, logging.NewNop())
	r.WithCommandRunner((&fakeRunner{}).run)

	if _, err := r.Render(context.Background(), "exp4", nil); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected error for empty excerpts, got %v", err)
	}
	excerpts[0].SegmentPath = filepath.Join(dir, "gone.mp4")
	if _, err := r.Render(context.Background(), "exp4", excerpts); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected error for missing segment, got %v", err)
	}
	if _, err := r.Render(context.Background(), "a/b", excerpts); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
