package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultBackendURL    = "http://localhost:8001"
	DefaultTimeout       = 60 * time.Second
	DefaultDocumentDir   = "."
	DefaultDataChannel   = "response"
	DefaultInboxSize     = 64
	DefaultAudioDevice   = "malgo"
	DefaultSampleRate    = 48000
	DefaultChannels      = 1
	DefaultFrameMs       = 20
	DefaultSuccessBanner = 2 * time.Second
	DefaultErrorBanner   = 5 * time.Second
	DefaultLogFile       = "docent.log"
	DefaultServiceName   = "docent"
)

// Environment variables consulted by [ApplyEnv], highest priority first.
var backendURLEnv = []string{"DOCENT_BACKEND_URL", "BACKEND_URL"}

// ValidAudioDevices lists the device names registered by the application.
// Used by [Validate] to warn about unrecognised names.
var ValidAudioDevices = []string{"malgo", "silent"}

// opusRates are the sample rates the Opus codec accepts.
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// opusFrames are the Opus frame durations in whole milliseconds.
var opusFrames = []int{10, 20, 40, 60}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		return finish(cfg, os.Getenv)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. An empty document is allowed.
func LoadFromReader(r io.Reader) (*Config, error) {
	return loadFromReader(r, os.Getenv)
}

func loadFromReader(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return finish(cfg, getenv)
}

func finish(cfg *Config, getenv func(string) string) (*Config, error) {
	ApplyEnv(cfg, getenv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables looked up via
// getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	for _, key := range backendURLEnv {
		if v := getenv(key); v != "" {
			cfg.Backend.BaseURL = v
			return
		}
	}
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultTimeout
	}
	if cfg.Backend.DocumentDir == "" {
		cfg.Backend.DocumentDir = DefaultDocumentDir
	}
	if cfg.Realtime.DataChannel == "" {
		cfg.Realtime.DataChannel = DefaultDataChannel
	}
	if cfg.Realtime.InboxSize == 0 {
		cfg.Realtime.InboxSize = DefaultInboxSize
	}
	if cfg.Audio.Device == "" {
		cfg.Audio.Device = DefaultAudioDevice
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = DefaultChannels
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = DefaultFrameMs
	}
	if cfg.UI.SuccessBanner == 0 {
		cfg.UI.SuccessBanner = DefaultSuccessBanner
	}
	if cfg.UI.ErrorBanner == 0 {
		cfg.UI.ErrorBanner = DefaultErrorBanner
	}
	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = LogInfo
	}
	if cfg.Telemetry.LogFile == "" && cfg.UI.IsEnabled() {
		cfg.Telemetry.LogFile = DefaultLogFile
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Backend
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q must be an absolute http or https URL", cfg.Backend.BaseURL))
	} else if u.Scheme == "http" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		slog.Warn("backend.base_url uses plain http to a remote host; SDP and documents are sent unencrypted", "base_url", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s must not be negative", cfg.Backend.Timeout))
	}
	if cb := cfg.Backend.CircuitBreaker; cb.MaxFailures < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("backend.circuit_breaker values must not be negative"))
	}
	if dir := cfg.Backend.DocumentDir; dir == "" {
		errs = append(errs, errors.New("backend.document_dir must not be empty"))
	} else {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			slog.Warn("backend.document_dir does not exist; uploadPdf calls will fail", "document_dir", dir)
		}
	}

	// Realtime
	if cfg.Realtime.InboxSize < 0 {
		errs = append(errs, fmt.Errorf("realtime.inbox_size %d must not be negative", cfg.Realtime.InboxSize))
	}
	for i, s := range cfg.Realtime.ICEServers {
		if s == "" {
			errs = append(errs, fmt.Errorf("realtime.ice_servers[%d] is empty", i))
		}
	}

	// Audio
	if !slices.Contains(ValidAudioDevices, cfg.Audio.Device) {
		slog.Warn("unknown audio device name; may be a typo or a device registered elsewhere",
			"device", cfg.Audio.Device,
			"known", ValidAudioDevices,
		)
	}
	if !slices.Contains(opusRates, cfg.Audio.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: %v", cfg.Audio.SampleRate, opusRates))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if !slices.Contains(opusFrames, cfg.Audio.FrameMs) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: %v", cfg.Audio.FrameMs, opusFrames))
	}

	// UI
	if cfg.UI.SuccessBanner < 0 || cfg.UI.ErrorBanner < 0 {
		errs = append(errs, errors.New("ui banner durations must not be negative"))
	}

	// Telemetry
	if !cfg.Telemetry.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Telemetry.LogLevel))
	}
	if cfg.Telemetry.LogFile == "" && cfg.UI.IsEnabled() {
		slog.Warn("telemetry.log_file is empty while the UI is enabled; log output will corrupt the screen")
	}

	return errors.Join(errs...)
}
