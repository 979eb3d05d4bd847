package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/scanman/constants"
)

// Environment variable names.
const (
	EnvIntakeDir      = "INTAKE_DIR"
	EnvCompletedDir   = "COMPLETED_DIR"
	EnvConfigFile     = "SCANMAN_CONFIG"
	EnvPollInterval   = "POLL_INTERVAL"
	EnvDeleteFiles    = "DELETE_FILES"
	EnvManifestName   = "MANIFEST_FILENAME"
	EnvVerifyTool     = "VERIFY_TOOL"
	EnvAssembleTool   = "ASSEMBLE_TOOL"
	EnvOCRTool        = "OCR_TOOL"
	EnvWatchNotify    = "WATCH_NOTIFY"
	EnvWatchDebounce  = "WATCH_DEBOUNCE"
	EnvHistoryDSN     = "HISTORY_DSN"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvOCRLanguage    = "OCR_LANGUAGE"
	EnvHistoryTimeout = "HISTORY_DIAL_TIMEOUT"
)

// Config holds all application configuration
type Config struct {
	Watch   WatchConfig
	Tools   ToolsConfig
	OCR     OCRConfig
	History HistoryConfig
	Log     LogConfig
}

// WatchConfig holds intake polling configuration
type WatchConfig struct {
	IntakeDir        string
	CompletedDir     string
	ManifestFilename string
	PollInterval     time.Duration
	DeleteFiles      bool
	Notify           bool
	NotifyDebounce   time.Duration
}

// ToolsConfig names the external binaries (name on PATH or absolute path)
type ToolsConfig struct {
	Verify   string
	Assemble string
	OCR      string
}

// OCRConfig holds the searchable-PDF post-processing options
type OCRConfig struct {
	RotatePages          bool
	RotatePagesThreshold float64
	Deskew               bool
	Clean                bool
	Language             string
}

// HistoryConfig holds run-history database configuration; empty DSN disables it
type HistoryConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			ManifestFilename: constants.DefaultManifestFilename,
			PollInterval:     20 * time.Second,
			DeleteFiles:      true,
			NotifyDebounce:   2 * time.Second,
		},
		Tools: ToolsConfig{
			Verify:   "shasum",
			Assemble: "img2pdf",
			OCR:      "ocrmypdf",
		},
		OCR: OCRConfig{
			RotatePages:          true,
			RotatePagesThreshold: 13,
			Deskew:               true,
			Clean:                true,
		},
		History: HistoryConfig{
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by SCANMAN_CONFIG, and environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := getEnv(EnvConfigFile, ""); path != "" {
		fc, err := LoadConfigFile(path)
		if err != nil {
			return nil, NewAppError(CodeConfig, "loading "+path, err)
		}
		fc.Apply(cfg)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. Values that are set but cannot be
// parsed are reported instead of falling back to the current value.
func applyEnv(cfg *Config) error {
	var bad []string
	boolVar := func(key string, dst *bool) {
		if err := getEnvAsBool(key, dst); err != nil {
			bad = append(bad, err.Error())
		}
	}
	durationVar := func(key string, dst *time.Duration) {
		if err := getEnvAsDuration(key, dst); err != nil {
			bad = append(bad, err.Error())
		}
	}

	w := &cfg.Watch
	w.IntakeDir = getEnv(EnvIntakeDir, w.IntakeDir)
	w.CompletedDir = getEnv(EnvCompletedDir, w.CompletedDir)
	w.ManifestFilename = getEnv(EnvManifestName, w.ManifestFilename)
	durationVar(EnvPollInterval, &w.PollInterval)
	boolVar(EnvDeleteFiles, &w.DeleteFiles)
	boolVar(EnvWatchNotify, &w.Notify)
	durationVar(EnvWatchDebounce, &w.NotifyDebounce)

	cfg.Tools.Verify = getEnv(EnvVerifyTool, cfg.Tools.Verify)
	cfg.Tools.Assemble = getEnv(EnvAssembleTool, cfg.Tools.Assemble)
	cfg.Tools.OCR = getEnv(EnvOCRTool, cfg.Tools.OCR)
	cfg.OCR.Language = getEnv(EnvOCRLanguage, cfg.OCR.Language)

	cfg.History.DSN = getEnv(EnvHistoryDSN, cfg.History.DSN)
	durationVar(EnvHistoryTimeout, &cfg.History.DialTimeout)

	cfg.Log.Level = getEnv(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = getEnv(EnvLogFormat, cfg.Log.Format)

	if len(bad) > 0 {
		return NewAppError(CodeConfig, strings.Join(bad, "; "), ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool leaves dst untouched when key is unset.
func getEnvAsBool(key string, dst *bool) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s=%q: must be true or false", key, value)
	}
	*dst = b
	return nil
}

// getEnvAsDuration leaves dst untouched when key is unset.
func getEnvAsDuration(key string, dst *time.Duration) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	d, err := ParseDurationOrSeconds(value)
	if err != nil {
		return fmt.Errorf("%s=%q: must be a duration like 30s or a number of seconds", key, value)
	}
	*dst = d
	return nil
}

// ParseDurationOrSeconds accepts a Go duration ("30s", "1m") or a bare
// number of seconds ("20", "2.5").
func ParseDurationOrSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field(EnvIntakeDir, c.Watch.IntakeDir, Required, ExistingDir).
		Field(EnvCompletedDir, c.Watch.CompletedDir, Required).
		Field(EnvManifestName, c.Watch.ManifestFilename, Required).
		Field(EnvPollInterval, c.Watch.PollInterval, PositiveDuration).
		Field(EnvVerifyTool, c.Tools.Verify, Required).
		Field(EnvAssembleTool, c.Tools.Assemble, Required).
		Field(EnvOCRTool, c.Tools.OCR, Required).
		Field(EnvLogLevel, c.Log.Level, OneOf("debug", "info", "warn", "error")).
		Field(EnvLogFormat, c.Log.Format, OneOf("text", "json"))
	if c.Watch.Notify {
		v.Field(EnvWatchDebounce, c.Watch.NotifyDebounce, PositiveDuration)
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
