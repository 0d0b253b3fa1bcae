package config

const (
	defaultConfigPath             = "~/.config/pawluxe/config.toml"
	defaultDataDir                = "~/.local/share/pawluxe"
	defaultDatabaseName           = "pawluxe.db"
	defaultExportDir              = "~/.local/share/pawluxe/exports"
	defaultLogDir                 = "~/.local/share/pawluxe/logs"
	defaultDetectorTimeoutSeconds = 10
	defaultFFmpegBinary           = "ffmpeg"
	defaultFrameWidth             = 640
	defaultFrameHeight            = 360
	defaultConfThreshold          = 0.25
	defaultIoUThreshold           = 0.45
	defaultClasses                = "15,16"
	defaultFrameStride            = 1
	defaultCommitInterval         = 30
	defaultReconnectRetries       = 20
	defaultReconnectDelaySeconds  = 2.0
	defaultIdentityMode           = "by-camera-track"
	defaultMatchThreshold         = 0.68
	defaultFallbackLabel          = "system-reid-auto"
	defaultPaddingSeconds         = 3.0
	defaultMergeGapSeconds        = 0.2
	defaultMinDurationSeconds     = 0.3
	defaultTargetSeconds          = 30.0
	defaultPerClipSeconds         = 4.0
	defaultPollIntervalSeconds    = 1.5
	minPollIntervalSeconds        = 0.2
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			ExportDir: defaultExportDir,
			LogDir:    defaultLogDir,
		},
		Tracking: Tracking{
			DetectorTimeoutSeconds: defaultDetectorTimeoutSeconds,
			FFmpegBinary:           defaultFFmpegBinary,
			FrameWidth:             defaultFrameWidth,
			FrameHeight:            defaultFrameHeight,
			ConfThreshold:          defaultConfThreshold,
			IoUThreshold:           defaultIoUThreshold,
			Classes:                defaultClasses,
			FrameStride:            defaultFrameStride,
			CommitInterval:         defaultCommitInterval,
			ReconnectRetries:       defaultReconnectRetries,
			ReconnectDelaySeconds:  defaultReconnectDelaySeconds,
			IdentityMode:           defaultIdentityMode,
			MatchThreshold:         defaultMatchThreshold,
			FallbackLabel:          defaultFallbackLabel,
		},
		Export: Export{
			PaddingSeconds:     defaultPaddingSeconds,
			MergeGapSeconds:    defaultMergeGapSeconds,
			MinDurationSeconds: defaultMinDurationSeconds,
			RenderVideo:        true,
			TargetSeconds:      defaultTargetSeconds,
			PerClipSeconds:     defaultPerClipSeconds,
			FFmpegBinary:       defaultFFmpegBinary,
		},
		Workflow: Workflow{
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
