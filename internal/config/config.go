// Package config provides the configuration structure for the tts-bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Default values, matching what the host plugin shipped with.
const (
	DefaultProbability     = 0.3
	DefaultMaxTextLen      = 200
	DefaultModel           = "tts-v4"
	DefaultResponseFormat  = "wav"
	DefaultSpeed           = 1.0
	DefaultCleanupInterval = 1.0
	DefaultScratchDir      = "temp"
	DefaultReplySubject    = "tts.reply.decorate"
	DefaultCommandSubject  = "tts.command.say"

	envPrefix = "TTS_BRIDGE"
)

// Reply modes for auto-speech.
const (
	ReplyModeReplace = "replace"
	ReplyModeAppend  = "append"
)

var (
	// ErrNegativeMaxTextLen indicates that max_resp_text_len is below zero.
	ErrNegativeMaxTextLen = errors.New("max_resp_text_len must be non-negative")
	// ErrUnknownReplyMode indicates an unsupported auto_config.reply_mode.
	ErrUnknownReplyMode = errors.New("unknown reply_mode")
)

// BaseSetting holds the TTS endpoint settings.
type BaseSetting struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AutoConfig holds the auto-speech-on-reply policy.
type AutoConfig struct {
	SendRecordProbability float64 `toml:"send_record_probability"`
	MaxRespTextLen        int     `toml:"max_resp_text_len"`
	StripAnnotations      bool    `toml:"strip_annotations"`
	ReplyMode             string  `toml:"reply_mode"`
}

// TTSParams holds the named parameters sent with every speech request.
type TTSParams struct {
	Model          string  `toml:"model"`
	Voice          string  `toml:"voice"`
	ResponseFormat string  `toml:"response_format"`
	Speed          float64 `toml:"speed"`
}

// CleanupSetting controls the scratch directory purge. Interval is in hours.
type CleanupSetting struct {
	CleanupInterval float64 `toml:"cleanup_interval"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	ScratchDir  string `toml:"scratch_dir"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	ReplySubject           string `toml:"reply_subject"`
	CommandSubject         string `toml:"command_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// MetricsConfig holds the Prometheus listener address. Empty disables it.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Config is the root configuration structure.
type Config struct {
	BaseSetting    BaseSetting    `toml:"base_setting"`
	AutoConfig     AutoConfig     `toml:"auto_config"`
	TTSParams      TTSParams      `toml:"tts_params"`
	OtherParams    map[string]any `toml:"other_params"`
	CleanupSetting CleanupSetting `toml:"cleanup_setting"`
	Paths          PathsConfig    `toml:"paths"`
	NATS           NATSConfig     `toml:"nats"`
	Metrics        MetricsConfig  `toml:"metrics"`
}

// envOverrides lists the settings that may be replaced from the environment.
type envOverrides struct {
	BaseURL     string `envconfig:"BASE_URL"`
	NATSURL     string `envconfig:"NATS_URL"`
	ScratchDir  string `envconfig:"SCRATCH_DIR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		BaseSetting: BaseSetting{BaseURL: "", TimeoutSeconds: 0},
		AutoConfig: AutoConfig{
			SendRecordProbability: DefaultProbability,
			MaxRespTextLen:        DefaultMaxTextLen,
			StripAnnotations:      true,
			ReplyMode:             ReplyModeReplace,
		},
		TTSParams: TTSParams{
			Model:          DefaultModel,
			Voice:          "",
			ResponseFormat: DefaultResponseFormat,
			Speed:          DefaultSpeed,
		},
		OtherParams:    map[string]any{},
		CleanupSetting: CleanupSetting{CleanupInterval: DefaultCleanupInterval},
		Paths:          PathsConfig{BaseLogsDir: os.TempDir(), ScratchDir: DefaultScratchDir},
		NATS: NATSConfig{
			URL:                    "",
			ReplySubject:           DefaultReplySubject,
			CommandSubject:         DefaultCommandSubject,
			AudioObjectStoreBucket: "",
		},
		Metrics: MetricsConfig{ListenAddr: ""},
	}
}

// Load loads the configuration for the tts-bridge through the central
// configurator, then applies environment overrides.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(cfg)
}

// LoadFile loads the configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// Parse decodes TOML data on top of the defaults. It does not consult the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	err := toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TOML: %w", err)
	}

	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	err := cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}

	cfg.normalize()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv loads an optional .env file and overlays TTS_BRIDGE_* variables.
func (c *Config) ApplyEnv() error {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	var overrides envOverrides

	err := envconfig.Process(envPrefix, &overrides)
	if err != nil {
		return fmt.Errorf("failed to process environment overrides: %w", err)
	}

	if overrides.BaseURL != "" {
		c.BaseSetting.BaseURL = overrides.BaseURL
	}

	if overrides.NATSURL != "" {
		c.NATS.URL = overrides.NATSURL
	}

	if overrides.ScratchDir != "" {
		c.Paths.ScratchDir = overrides.ScratchDir
	}

	if overrides.MetricsAddr != "" {
		c.Metrics.ListenAddr = overrides.MetricsAddr
	}

	return nil
}

// normalize fills blank string parameters and clamps the probability.
func (c *Config) normalize() {
	if c.TTSParams.Model == "" {
		c.TTSParams.Model = DefaultModel
	}

	if c.TTSParams.ResponseFormat == "" {
		c.TTSParams.ResponseFormat = DefaultResponseFormat
	}

	if c.TTSParams.Speed == 0 {
		c.TTSParams.Speed = DefaultSpeed
	}

	if c.AutoConfig.ReplyMode == "" {
		c.AutoConfig.ReplyMode = ReplyModeReplace
	}

	if c.OtherParams == nil {
		c.OtherParams = map[string]any{}
	}

	if c.Paths.ScratchDir == "" {
		c.Paths.ScratchDir = DefaultScratchDir
	}

	if c.NATS.ReplySubject == "" {
		c.NATS.ReplySubject = DefaultReplySubject
	}

	if c.NATS.CommandSubject == "" {
		c.NATS.CommandSubject = DefaultCommandSubject
	}

	c.AutoConfig.SendRecordProbability = min(max(c.AutoConfig.SendRecordProbability, 0), 1)
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if c.AutoConfig.MaxRespTextLen < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeMaxTextLen, c.AutoConfig.MaxRespTextLen)
	}

	switch c.AutoConfig.ReplyMode {
	case ReplyModeReplace, ReplyModeAppend:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownReplyMode, c.AutoConfig.ReplyMode)
	}

	return nil
}

// CleanupInterval converts the configured hours into a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupSetting.CleanupInterval * float64(time.Hour))
}

// RequestTimeout returns the HTTP timeout. Zero means the transport default.
func (c *Config) RequestTimeout() time.Duration {
	if c.BaseSetting.TimeoutSeconds <= 0 {
		return 0
	}

	return time.Duration(c.BaseSetting.TimeoutSeconds) * time.Second
}
