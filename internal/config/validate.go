package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTracking(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		return errors.New("paths.export_dir must be set")
	}
	return nil
}

func (c *Config) validateTracking() error {
	t := c.Tracking
	if err := ensurePositiveMap(map[string]int{
		"tracking.frame_width":            t.FrameWidth,
		"tracking.frame_height":           t.FrameHeight,
		"tracking.frame_stride":           t.FrameStride,
		"tracking.commit_interval_frames": t.CommitInterval,
	}); err != nil {
		return err
	}
	if t.ReconnectRetries < 0 {
		return errors.New("tracking.reconnect_retries must be >= 0")
	}
	if t.ReconnectDelaySeconds < 0 {
		return errors.New("tracking.reconnect_delay_seconds must be >= 0")
	}
	if err := ensureUnitInterval(map[string]float64{
		"tracking.conf_threshold":       t.ConfThreshold,
		"tracking.iou_threshold":        t.IoUThreshold,
		"tracking.reid_match_threshold": t.MatchThreshold,
	}); err != nil {
		return err
	}
	switch t.IdentityMode {
	case "by-identity", "animal", "by-camera-track", "camera_track", "auto-resolve", "reid_auto":
	default:
		return fmt.Errorf("tracking.identity_mode: unsupported value %q", t.IdentityMode)
	}
	if t.Classes != "" {
		for _, part := range strings.Split(t.Classes, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, err := strconv.Atoi(part); err != nil {
				return fmt.Errorf("tracking.classes: invalid class id %q", part)
			}
		}
	}
	return nil
}

func (c *Config) validateExport() error {
	e := c.Export
	if e.PaddingSeconds < 0 {
		return errors.New("export.padding_seconds must be >= 0")
	}
	if e.MergeGapSeconds < 0 {
		return errors.New("export.merge_gap_seconds must be >= 0")
	}
	if e.MinDurationSeconds < 0 {
		return errors.New("export.min_duration_seconds must be >= 0")
	}
	if e.PerClipSeconds <= 0 {
		return errors.New("export.per_clip_seconds must be positive")
	}
	if e.TargetSeconds < 0 {
		return errors.New("export.target_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureUnitInterval(values map[string]float64) error {
	for key, value := range values {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}
