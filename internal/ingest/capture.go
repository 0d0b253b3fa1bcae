package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"pawluxe/internal/services"
)

// Frame is one decoded RGB24 image.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// Capture is a reconnectable frame source.
type Capture interface {
	Open(ctx context.Context, locator string) error
	// Read returns the next frame. ok is false when the stream ended or failed.
	Read(ctx context.Context) (frame Frame, ok bool)
	Release() error
}

// FFmpegCapture decodes a stream into raw RGB24 frames through an ffmpeg
// subprocess.
type FFmpegCapture struct {
	Binary string
	Width  int
	Height int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
}

// NewFFmpegCapture returns a capture scaling frames to width x height.
func NewFFmpegCapture(binary string, width, height int) *FFmpegCapture {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegCapture{Binary: binary, Width: width, Height: height}
}

// FrameSize is the byte length of one frame.
func (c *FFmpegCapture) FrameSize() int {
	return c.Width * c.Height * 3
}

func (c *FFmpegCapture) args(locator string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	if strings.HasPrefix(strings.ToLower(locator), "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args,
		"-i", locator,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-vf", "scale="+strconv.Itoa(c.Width)+":"+strconv.Itoa(c.Height),
		"pipe:1",
	)
}

// Open starts the decoder process.
func (c *FFmpegCapture) Open(ctx context.Context, locator string) error {
	if c.Width <= 0 || c.Height <= 0 {
		return services.Wrap(services.ErrConfiguration, "ingest", "open capture", "frame dimensions must be positive", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return errors.New("capture already open")
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, c.Binary, c.args(locator)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return services.Wrap(services.ErrExternalTool, "ingest", "open capture", "start ffmpeg", err)
	}
	c.cmd = cmd
	c.stdout = stdout
	c.reader = bufio.NewReaderSize(stdout, c.FrameSize())
	c.cancel = cancel
	return nil
}

// Read blocks until a full frame is available.
func (c *FFmpegCapture) Read(ctx context.Context) (Frame, bool) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil || ctx.Err() != nil {
		return Frame{}, false
	}
	buf := make([]byte, c.FrameSize())
	if _, err := io.ReadFull(reader, buf); err != nil {
		return Frame{}, false
	}
	return Frame{Width: c.Width, Height: c.Height, Pixels: buf}, true
}

// Release stops the decoder. It is safe to call on a closed capture.
func (c *FFmpegCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil {
		return nil
	}
	c.cancel()
	_ = c.stdout.Close()
	_ = c.cmd.Wait()
	c.cmd = nil
	c.stdout = nil
	c.reader = nil
	c.cancel = nil
	return nil
}
