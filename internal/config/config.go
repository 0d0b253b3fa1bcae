package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
	ExportDir    string `toml:"export_dir"`
	LogDir       string `toml:"log_dir"`
}

// Tracking contains defaults for the stream ingestion worker. Every value can
// be overridden per run from the command line.
type Tracking struct {
	DetectorURL            string  `toml:"detector_url"`
	DetectorTimeoutSeconds int     `toml:"detector_timeout_seconds"`
	FFmpegBinary           string  `toml:"ffmpeg_binary"`
	FrameWidth             int     `toml:"frame_width"`
	FrameHeight            int     `toml:"frame_height"`
	ConfThreshold          float64 `toml:"conf_threshold"`
	IoUThreshold           float64 `toml:"iou_threshold"`
	Classes                string  `toml:"classes"`
	FrameStride            int     `toml:"frame_stride"`
	CommitInterval         int     `toml:"commit_interval_frames"`
	ReconnectRetries       int     `toml:"reconnect_retries"`
	ReconnectDelaySeconds  float64 `toml:"reconnect_delay_seconds"`
	IdentityMode           string  `toml:"identity_mode"`
	MatchThreshold         float64 `toml:"reid_match_threshold"`
	FallbackLabel          string  `toml:"fallback_label"`
}

// Export contains default export job parameters and renderer settings.
type Export struct {
	PaddingSeconds       float64 `toml:"padding_seconds"`
	MergeGapSeconds      float64 `toml:"merge_gap_seconds"`
	MinDurationSeconds   float64 `toml:"min_duration_seconds"`
	RenderVideo          bool    `toml:"render_video"`
	TargetSeconds        float64 `toml:"target_seconds"`
	PerClipSeconds       float64 `toml:"per_clip_seconds"`
	FFmpegBinary         string  `toml:"ffmpeg_binary"`
	RenderTimeoutSeconds int     `toml:"render_timeout_seconds"`
}

// Workflow contains configuration for the export job worker loop.
type Workflow struct {
	PollIntervalSeconds float64 `toml:"poll_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the optional Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config encapsulates all configuration values for pawluxe.
//
// Configuration sections by subsystem:
//   - Paths: data, database, export and log locations
//   - Tracking: detection oracle, capture, reconnect and identity defaults
//   - Export: job payload defaults and renderer settings
//   - Workflow: export worker polling
//   - Logging: log format and level
//   - Metrics: Prometheus listen address
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tracking Tracking `toml:"tracking"`
	Export   Export   `toml:"export"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pawluxe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, export and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.ExportDir, c.Paths.LogDir}
	if dbDir := filepath.Dir(c.Paths.DatabasePath); dbDir != "" && dbDir != "." {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExportWorkerLockPath is the single-instance lock file for the export worker.
func (c *Config) ExportWorkerLockPath() string {
	return filepath.Join(c.Paths.DataDir, "export-worker.lock")
}

// TrackLockPath is the single-instance lock file for ingestion of one camera.
func (c *Config) TrackLockPath(cameraID string) string {
	return filepath.Join(c.Paths.DataDir, "locks", "track-"+sanitizeLockName(cameraID)+".lock")
}

func sanitizeLockName(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
