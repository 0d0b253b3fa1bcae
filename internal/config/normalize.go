package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTracking()
	c.normalizeExport()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = filepath.Join(c.Paths.DataDir, defaultDatabaseName)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		c.Paths.ExportDir = filepath.Join(c.Paths.DataDir, "exports")
	}
	if c.Paths.ExportDir, err = expandPath(c.Paths.ExportDir); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTracking() {
	t := &c.Tracking
	t.DetectorURL = strings.TrimSpace(t.DetectorURL)
	if t.DetectorURL == "" {
		if value, ok := os.LookupEnv("PAWLUXE_DETECTOR_URL"); ok {
			t.DetectorURL = strings.TrimSpace(value)
		}
	}
	if t.DetectorTimeoutSeconds <= 0 {
		t.DetectorTimeoutSeconds = defaultDetectorTimeoutSeconds
	}
	t.FFmpegBinary = strings.TrimSpace(t.FFmpegBinary)
	if t.FFmpegBinary == "" {
		t.FFmpegBinary = defaultFFmpegBinary
	}
	t.Classes = strings.TrimSpace(t.Classes)
	t.IdentityMode = strings.ToLower(strings.TrimSpace(t.IdentityMode))
	if t.IdentityMode == "" {
		t.IdentityMode = defaultIdentityMode
	}
	t.FallbackLabel = strings.TrimSpace(t.FallbackLabel)
	if t.FallbackLabel == "" {
		t.FallbackLabel = defaultFallbackLabel
	}
}

func (c *Config) normalizeExport() {
	c.Export.FFmpegBinary = strings.TrimSpace(c.Export.FFmpegBinary)
	if c.Export.FFmpegBinary == "" {
		c.Export.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Export.RenderTimeoutSeconds < 0 {
		c.Export.RenderTimeoutSeconds = 0
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollIntervalSeconds <= 0 {
		c.Workflow.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Workflow.PollIntervalSeconds < minPollIntervalSeconds {
		c.Workflow.PollIntervalSeconds = minPollIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
