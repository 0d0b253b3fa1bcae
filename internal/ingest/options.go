package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pawluxe/internal/config"
	"pawluxe/internal/identity"
	"pawluxe/internal/services"
)

// Options are the per-run parameters of the stream worker.
type Options struct {
	CameraID         string
	IdentityHint     string
	StreamURL        string
	ConfThreshold    float64
	IoUThreshold     float64
	Classes          string
	FrameStride      int
	CommitInterval   int
	ReconnectRetries int
	ReconnectDelay   time.Duration
	MaxFrames        int
	MaxSeconds       float64
	IdentityMode     string
	MatchThreshold   float64
	FallbackLabel    string
}

// OptionsFromConfig seeds options from the [tracking] section.
func OptionsFromConfig(cfg *config.Config, cameraID string) Options {
	t := cfg.Tracking
	return Options{
		CameraID:         cameraID,
		ConfThreshold:    t.ConfThreshold,
		IoUThreshold:     t.IoUThreshold,
		Classes:          t.Classes,
		FrameStride:      t.FrameStride,
		CommitInterval:   t.CommitInterval,
		ReconnectRetries: t.ReconnectRetries,
		ReconnectDelay:   time.Duration(t.ReconnectDelaySeconds * float64(time.Second)),
		IdentityMode:     t.IdentityMode,
		MatchThreshold:   t.MatchThreshold,
		FallbackLabel:    t.FallbackLabel,
	}
}

// Validate rejects options the worker cannot run with. It has no side effects.
func (o Options) Validate() error {
	if strings.TrimSpace(o.CameraID) == "" {
		return invalid("camera id is required")
	}
	if o.FrameStride < 1 {
		return invalid(fmt.Sprintf("frame stride must be >= 1, got %d", o.FrameStride))
	}
	if o.CommitInterval < 1 {
		return invalid(fmt.Sprintf("commit interval must be >= 1, got %d", o.CommitInterval))
	}
	if o.ReconnectRetries < 0 {
		return invalid("reconnect retries must be >= 0")
	}
	if o.ReconnectDelay < 0 {
		return invalid("reconnect delay must be >= 0")
	}
	if o.MaxFrames < 0 || o.MaxSeconds < 0 {
		return invalid("limits must be >= 0")
	}
	if o.ConfThreshold < 0 || o.ConfThreshold > 1 {
		return invalid(fmt.Sprintf("confidence threshold %v outside [0,1]", o.ConfThreshold))
	}
	if o.IoUThreshold < 0 || o.IoUThreshold > 1 {
		return invalid(fmt.Sprintf("iou threshold %v outside [0,1]", o.IoUThreshold))
	}
	if _, err := ParseClasses(o.Classes); err != nil {
		return err
	}
	mode, err := identity.ParseMode(o.IdentityMode)
	if err != nil {
		return err
	}
	if mode == identity.ModeByIdentity && identity.NormalizeLabel(o.IdentityHint) == "" {
		return invalid("by-identity mode requires an identity hint")
	}
	return nil
}

// ParseClasses parses a comma separated class filter. Empty means no filter.
func ParseClasses(csv string) ([]int, error) {
	var classes []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, invalid(fmt.Sprintf("malformed class filter %q", csv))
		}
		classes = append(classes, id)
	}
	return classes, nil
}

func invalid(msg string) error {
	return services.Wrap(services.ErrValidation, "ingest", "validate options", msg, nil)
}
