// Package config provides the configuration schema, loader and audio device
// registry for the docent client.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Audio     AudioConfig     `yaml:"audio"`
	UI        UIConfig        `yaml:"ui"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig locates the assistant backend.
type BackendConfig struct {
	// BaseURL is the scheme and host of the backend (e.g.,
	// "http://localhost:8001"). Overridden by DOCENT_BACKEND_URL or
	// BACKEND_URL.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every REST request. Default: 60s.
	Timeout time.Duration `yaml:"timeout"`

	// DocumentDir is the only directory the uploadPdf function may read
	// from. Relative paths given by the model resolve against it.
	// Default: "." (the working directory).
	DocumentDir string `yaml:"document_dir"`

	// CircuitBreaker optionally stops calling a failing backend for a while.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the optional backend circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RealtimeConfig tunes the voice session.
type RealtimeConfig struct {
	// ICEServers are STUN/TURN URLs. Empty means host candidates only.
	ICEServers []string `yaml:"ice_servers"`

	// DataChannel is the label of the event channel. Default: "response".
	DataChannel string `yaml:"data_channel"`

	// RespondAfterToolCall asks the model to respond after every function
	// output.
	RespondAfterToolCall bool `yaml:"respond_after_tool_call"`

	// FlushPendingOnStop flushes a lone pending transcript when the session
	// stops. Default: true.
	FlushPendingOnStop *bool `yaml:"flush_pending_on_stop"`

	// InboxSize is the number of data channel messages buffered ahead of the
	// router. Default: 64.
	InboxSize int `yaml:"inbox_size"`
}

// FlushPending reports the effective FlushPendingOnStop value.
func (r RealtimeConfig) FlushPending() bool {
	return r.FlushPendingOnStop == nil || *r.FlushPendingOnStop
}

// AudioConfig selects the local audio device and its PCM layout.
type AudioConfig struct {
	// Device is the registered device name. Default: "malgo".
	Device string `yaml:"device"`

	// SampleRate in Hz. Must be an Opus rate. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is 1 or 2. Default: 1.
	Channels int `yaml:"channels"`

	// FrameMs is the capture frame length. Default: 20.
	FrameMs int `yaml:"frame_ms"`
}

// UIConfig controls the terminal interface.
type UIConfig struct {
	// Enabled runs the interactive terminal UI. Default: true.
	Enabled *bool `yaml:"enabled"`

	// SuccessBanner is how long success banners stay visible. Default: 2s.
	SuccessBanner time.Duration `yaml:"success_banner"`

	// ErrorBanner is how long error banners stay visible. Default: 5s.
	ErrorBanner time.Duration `yaml:"error_banner"`
}

// IsEnabled reports the effective Enabled value.
func (u UIConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// ArchiveConfig controls local transcript persistence.
type ArchiveConfig struct {
	// Path of the BoltDB file. Empty disables the archive.
	Path string `yaml:"path"`
}

// TelemetryConfig holds logging and diagnostics settings.
type TelemetryConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives log output. Default: "docent.log" while the UI is
	// enabled, stderr otherwise.
	LogFile string `yaml:"log_file"`

	// DiagnosticsAddr, when set, serves /metrics, /healthz and /readyz on
	// this address (e.g., "127.0.0.1:9464").
	DiagnosticsAddr string `yaml:"diagnostics_addr"`

	// ServiceName is reported as the OpenTelemetry service name.
	// Default: "docent".
	ServiceName string `yaml:"service_name"`
}
