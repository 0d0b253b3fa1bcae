package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pawluxe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PAWLUXE_DETECTOR_URL", "http://127.0.0.1:9000/detect")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "pawluxe")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.DatabasePath != filepath.Join(wantData, "pawluxe.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.DatabasePath)
	}
	if cfg.Tracking.DetectorURL != "http://127.0.0.1:9000/detect" {
		t.Fatalf("expected detector url from env, got %q", cfg.Tracking.DetectorURL)
	}
	if cfg.Tracking.IdentityMode != "by-camera-track" {
		t.Fatalf("unexpected identity mode: %q", cfg.Tracking.IdentityMode)
	}
	if cfg.Tracking.FallbackLabel != "system-reid-auto" {
		t.Fatalf("unexpected fallback label: %q", cfg.Tracking.FallbackLabel)
	}
	if !cfg.Export.RenderVideo {
		t.Fatal("expected render_video enabled by default")
	}
	if cfg.Workflow.PollIntervalSeconds != 1.5 {
		t.Fatalf("unexpected poll interval: %v", cfg.Workflow.PollIntervalSeconds)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ExportDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pawluxe.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Tracking struct {
			IdentityMode   string  `toml:"identity_mode"`
			MatchThreshold float64 `toml:"reid_match_threshold"`
		} `toml:"tracking"`
		Workflow struct {
			PollIntervalSeconds float64 `toml:"poll_interval_seconds"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Tracking.IdentityMode = " Auto-Resolve "
	custom.Tracking.MatchThreshold = 0.9
	custom.Workflow.PollIntervalSeconds = 0.05
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Tracking.IdentityMode != "auto-resolve" {
		t.Fatalf("expected normalized identity mode, got %q", cfg.Tracking.IdentityMode)
	}
	if cfg.Tracking.MatchThreshold != 0.9 {
		t.Fatalf("expected match threshold override, got %v", cfg.Tracking.MatchThreshold)
	}
	if cfg.Paths.DatabasePath != filepath.Join(tempDir, "data", "pawluxe.db") {
		t.Fatalf("expected database under data dir, got %q", cfg.Paths.DatabasePath)
	}
	if cfg.Workflow.PollIntervalSeconds != 0.2 {
		t.Fatalf("expected poll interval clamped to 0.2, got %v", cfg.Workflow.PollIntervalSeconds)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "pawluxe.toml")
	if err := os.WriteFile(configPath, []byte("[tracking]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "PAWLUXE_DETECTOR_URL") {
		t.Fatalf("sample config missing detector hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "pawluxe") {
		t.Fatalf("expected data dir to contain pawluxe, got %q", cfg.Paths.DataDir)
	}
	if cfg.Export.PerClipSeconds != 4.0 {
		t.Fatalf("unexpected per_clip_seconds in sample: %v", cfg.Export.PerClipSeconds)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"stride", func(c *config.Config) { c.Tracking.FrameStride = 0 }},
		{"commit interval", func(c *config.Config) { c.Tracking.CommitInterval = 0 }},
		{"identity mode", func(c *config.Config) { c.Tracking.IdentityMode = "sideways" }},
		{"classes", func(c *config.Config) { c.Tracking.Classes = "15,cat" }},
		{"conf threshold", func(c *config.Config) { c.Tracking.ConfThreshold = 1.5 }},
		{"retries", func(c *config.Config) { c.Tracking.ReconnectRetries = -1 }},
		{"per clip", func(c *config.Config) { c.Export.PerClipSeconds = 0 }},
		{"padding", func(c *config.Config) { c.Export.PaddingSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestTrackLockPathSanitizesCameraID(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/var/lib/pawluxe"
	got := cfg.TrackLockPath("yard/cam 1")
	want := filepath.Join("/var/lib/pawluxe", "locks", "track-yard_cam_1.lock")
	if got != want {
		t.Fatalf("TrackLockPath = %q, want %q", got, want)
	}
}
