package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pawluxe/internal/deps"
	"pawluxe/internal/logging"
	"pawluxe/internal/services"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Renderer cuts excerpts out of their segments and concatenates them into
// <export_dir>/<export_id>.mp4.
type Renderer struct {
	binary    string
	exportDir string
	timeout   time.Duration
	logger    *slog.Logger
	run       commandRunner
}

// NewRenderer constructs a renderer. A zero timeout disables the deadline.
func NewRenderer(binary, exportDir string, timeout time.Duration, logger *slog.Logger) *Renderer {
	return &Renderer{
		binary:    deps.ResolveFFmpeg(binary),
		exportDir: exportDir,
		timeout:   timeout,
		logger:    logging.NewComponentLogger(logger, "renderer"),
		run:       defaultRenderCommandRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (r *Renderer) WithCommandRunner(run commandRunner) {
	if r != nil && run != nil {
		r.run = run
	}
}

// Render produces the export video and returns its path. Re-rendering an
// export id overwrites the previous output.
func (r *Renderer) Render(ctx context.Context, exportID string, excerpts []Excerpt) (string, error) {
	if err := validateExportID(exportID); err != nil {
		return "", err
	}
	if len(excerpts) == 0 {
		return "", renderError("no excerpts to render", nil)
	}
	binary, err := deps.RequireFFmpeg(r.binary)
	if err != nil {
		return "", renderError("ffmpeg not available", err)
	}
	for _, e := range excerpts {
		if _, err := os.Stat(e.SegmentPath); err != nil {
			return "", renderError(fmt.Sprintf("segment %s unreadable", e.SegmentID), err)
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	workDir := filepath.Join(r.exportDir, exportID+".work")
	if err := os.RemoveAll(workDir); err != nil {
		return "", fmt.Errorf("reset work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	started := time.Now()
	clips := make([]string, 0, len(excerpts))
	for i, e := range excerpts {
		clip := filepath.Join(workDir, fmt.Sprintf("clip-%04d.mp4", i))
		if err := r.run(ctx, binary, clipArgs(e, clip)...); err != nil {
			return "", r.wrapRunError(ctx, fmt.Sprintf("cut excerpt %d", i), err)
		}
		clips = append(clips, clip)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(concatList(clips)), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}

	output := filepath.Join(r.exportDir, exportID+".mp4")
	partial := filepath.Join(workDir, "output.mp4")
	if err := r.run(ctx, binary, concatArgs(listPath, partial)...); err != nil {
		return "", r.wrapRunError(ctx, "concatenate excerpts", err)
	}
	if _, err := os.Stat(partial); err != nil {
		return "", renderError("ffmpeg produced no output", err)
	}
	if err := os.Rename(partial, output); err != nil {
		return "", fmt.Errorf("finalize export video: %w", err)
	}

	r.logger.Info("export video rendered",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.String("export_id", exportID),
		logging.Int("excerpts", len(excerpts)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String("output", output),
	)
	return output, nil
}

func (r *Renderer) wrapRunError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "export", "render", op+": render timed out", err)
	}
	return renderError(op, err)
}

// clipArgs re-encodes the excerpt so cuts land on exact frames.
func clipArgs(e Excerpt, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(e.OffsetSeconds),
		"-i", e.SegmentPath,
		"-t", formatSeconds(e.DurationSeconds),
		"-map", "0:v:0",
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		output,
	}
}

func concatArgs(listPath, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	}
}

func concatList(clips []string) string {
	var b strings.Builder
	for _, clip := range clips {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(clip, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func renderError(msg string, err error) error {
	return services.Wrap(services.ErrExternalTool, "export", "render", msg, err)
}

func defaultRenderCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
