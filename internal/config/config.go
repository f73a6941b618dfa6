// Package config handles configuration loading, validation, and hot reload
// for imeswitchd.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Switching holds the global switching behavior.
	Switching SwitchingConfig `toml:"switching" json:"switching" yaml:"switching"`

	// Regions holds per-region-kind switching preferences.
	Regions RegionsConfig `toml:"regions" json:"regions" yaml:"regions"`

	// Indicator holds pass-through values for indicator clients.
	Indicator IndicatorConfig `toml:"indicator" json:"indicator" yaml:"indicator"`

	// Switcher holds platform backend selection and tuning.
	Switcher SwitcherConfig `toml:"switcher" json:"switcher" yaml:"switcher"`

	// History holds switch history storage configuration.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for editor plugin connections.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Daemon holds process lifecycle configuration.
	Daemon DaemonConfig `toml:"daemon" json:"daemon" yaml:"daemon"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// SwitchingConfig holds the global switching behavior.
type SwitchingConfig struct {
	// Enabled is the master switch. When off, every decision is suppressed.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// AutoSwitch enables switching driven by cursor movement. When off,
	// only focus-gain cycles may switch; cursor-driven cycles are
	// suppressed.
	AutoSwitch bool `toml:"auto_switch" json:"auto_switch" yaml:"auto_switch"`

	// DebounceMs is the quiescence window after the last cursor move
	// before a decision cycle runs.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// MinIntervalMs is the minimum time between executed switches for the
	// same target and context.
	MinIntervalMs int `toml:"min_interval_ms" json:"min_interval_ms" yaml:"min_interval_ms"`
}

// RegionPolicy is one region kind's switching preference.
type RegionPolicy struct {
	// Enabled determines whether switching is performed in this region.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Mode is "latin", "native", or "auto" (follow the classifier).
	Mode string `toml:"mode" json:"mode" yaml:"mode"`
}

// RegionsConfig holds the per-region policies.
type RegionsConfig struct {
	Code    RegionPolicy `toml:"code" json:"code" yaml:"code"`
	Comment RegionPolicy `toml:"comment" json:"comment" yaml:"comment"`
	String  RegionPolicy `toml:"string" json:"string" yaml:"string"`
	Doc     RegionPolicy `toml:"doc" json:"doc" yaml:"doc"`
}

// IndicatorConfig holds values forwarded to indicator clients. The daemon
// itself renders nothing.
type IndicatorConfig struct {
	// TimeoutMs is how long an indicator should stay visible.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`

	// Opacity is the advisory indicator opacity in [0.1, 1.0].
	Opacity float64 `toml:"opacity" json:"opacity" yaml:"opacity"`
}

// SwitcherConfig holds platform backend configuration.
type SwitcherConfig struct {
	// Backend overrides platform detection: "ibus", "fcitx5", "macism",
	// "keytoggle", or "noop". Empty selects by platform.
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// LatinEngine is the IME engine used for Latin mode
	// (Linux: e.g. "xkb:us::eng"; macOS: an input source ID).
	LatinEngine string `toml:"latin_engine" json:"latin_engine" yaml:"latin_engine"`

	// NativeEngine is the IME engine used for the native mode.
	NativeEngine string `toml:"native_engine" json:"native_engine" yaml:"native_engine"`

	// TimeoutMs bounds a single switch call.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`

	// KeyDelayMs is the pause between key-down and key-up for the blind
	// keystroke toggle backend.
	KeyDelayMs int `toml:"key_delay_ms" json:"key_delay_ms" yaml:"key_delay_ms"`
}

// HistoryConfig holds switch history storage configuration.
type HistoryConfig struct {
	// Enabled determines whether committed switches are recorded.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays is how long history rows are kept.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// IPCConfig holds the editor-plugin IPC configuration.
type IPCConfig struct {
	// SocketPath is the Unix socket path (named pipe on Windows).
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxConnections is the maximum concurrent plugin connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// MaxMessageBytes bounds a single IPC message, document syncs included.
	MaxMessageBytes int `toml:"max_message_bytes" json:"max_message_bytes" yaml:"max_message_bytes"`
}

// DaemonConfig holds process lifecycle configuration.
type DaemonConfig struct {
	// PidFile is the PID file path.
	PidFile string `toml:"pid_file" json:"pid_file" yaml:"pid_file"`
}

// Default returns a configuration with baseline defaults: code regions switch
// to Latin, string literals follow the classifier, comments and documentation
// do not switch.
func Default() *Config {
	dataDir := PlatformDataDir()
	return &Config{
		Version: Version,
		Switching: SwitchingConfig{
			Enabled:       true,
			AutoSwitch:    true,
			DebounceMs:    150,
			MinIntervalMs: 50,
		},
		Regions: RegionsConfig{
			Code:    RegionPolicy{Enabled: true, Mode: "latin"},
			Comment: RegionPolicy{Enabled: false, Mode: "native"},
			String:  RegionPolicy{Enabled: true, Mode: "auto"},
			Doc:     RegionPolicy{Enabled: false, Mode: "native"},
		},
		Indicator: IndicatorConfig{
			TimeoutMs: 2000,
			Opacity:   0.8,
		},
		Switcher: SwitcherConfig{
			Backend:    "",
			TimeoutMs:  1000,
			KeyDelayMs: 20,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          filepath.Join(dataDir, "history.db"),
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformLogDir(), "imeswitchd.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		IPC: IPCConfig{
			SocketPath:      DefaultSocketPath(),
			MaxConnections:  16,
			MaxMessageBytes: 4 * 1024 * 1024,
		},
		Daemon: DaemonConfig{
			PidFile: filepath.Join(PlatformRuntimeDir(), "imeswitchd.pid"),
		},
	}
}

// RegionPolicy returns the policy for a region name ("code", "comment",
// "string", "doc"), or nil for an unknown name.
func (c *Config) RegionPolicy(name string) *RegionPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "code":
		return &c.Regions.Code
	case "comment":
		return &c.Regions.Comment
	case "string":
		return &c.Regions.String
	case "doc":
		return &c.Regions.Doc
	default:
		return nil
	}
}

// DebounceWindow returns the debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Switching.DebounceMs) * time.Millisecond
}

// MinInterval returns the minimum inter-switch interval as a duration.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Switching.MinIntervalMs) * time.Millisecond
}

// SwitchTimeout returns the platform switch call timeout as a duration.
func (c *Config) SwitchTimeout() time.Duration {
	return time.Duration(c.Switcher.TimeoutMs) * time.Millisecond
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// ApplyEnvOverrides applies IMESWITCHD_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("IMESWITCHD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IMESWITCHD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("IMESWITCHD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("IMESWITCHD_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("IMESWITCHD_BACKEND"); v != "" {
		c.Switcher.Backend = v
	}
	if v := os.Getenv("IMESWITCHD_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Switching.DebounceMs = ms
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := Config{
		Version:   c.Version,
		Switching: c.Switching,
		Regions:   c.Regions,
		Indicator: c.Indicator,
		Switcher:  c.Switcher,
		History:   c.History,
		Logging:   c.Logging,
		IPC:       c.IPC,
		Daemon:    c.Daemon,
	}
	return &clone
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.History.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.Daemon.PidFile),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
