package ingest

import (
	"context"
	"strings"
	"testing"

	"pawluxe/internal/testsupport"
)

func TestFFmpegCaptureReadsRawFrames(t *testing.T) {
	// two 2x2 RGB24 frames
	testsupport.NewConfig(t, testsupport.WithStubScript("ffmpeg", "head -c 24 /dev/zero"))

	capture := NewFFmpegCapture("ffmpeg", 2, 2)
	ctx := context.Background()
	if err := capture.Open(ctx, "rtsp://example/live"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = capture.Release() }()

	for i := 0; i < 2; i++ {
		frame, ok := capture.Read(ctx)
		if !ok {
			t.Fatalf("frame %d: expected ok", i)
		}
		if len(frame.Pixels) != 12 || frame.Width != 2 || frame.Height != 2 {
			t.Fatalf("frame %d: unexpected frame %dx%d len=%d", i, frame.Width, frame.Height, len(frame.Pixels))
		}
	}
	if _, ok := capture.Read(ctx); ok {
		t.Fatal("expected end of stream")
	}
	if err := capture.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := capture.Read(ctx); ok {
		t.Fatal("read after release must fail")
	}
}

func TestFFmpegCaptureArgs(t *testing.T) {
	capture := NewFFmpegCapture("", 640, 360)
	args := capture.args("rtsp://cam/live")
	joined := strings.Join(args, " ")
	for _, want := range []string{"-rtsp_transport tcp", "-i rtsp://cam/live", "-pix_fmt rgb24", "scale=640:360", "pipe:1"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if capture.Binary != "ffmpeg" {
		t.Fatalf("expected default binary, got %q", capture.Binary)
	}
}
