package config

import (
	"fmt"
	"strings"
)

// Clamp bounds for durations and advisory values. Persisted values outside
// these ranges are pulled back in rather than rejected, so a malformed config
// can never stall the decision pipeline.
const (
	MinDebounceMs = 0
	MaxDebounceMs = 5000

	MinIntervalFloorMs = 0
	MinIntervalCeilMs  = 1000

	MinOpacity = 0.1
	MaxOpacity = 1.0
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Normalize clamps out-of-range values into their supported ranges and fills
// empty enum fields with defaults. It returns the list of adjustments made,
// for logging.
func (c *Config) Normalize() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var adjusted []string
	note := func(format string, args ...any) {
		adjusted = append(adjusted, fmt.Sprintf(format, args...))
	}

	if c.Switching.DebounceMs < MinDebounceMs {
		note("switching.debounce_ms %d -> %d", c.Switching.DebounceMs, MinDebounceMs)
		c.Switching.DebounceMs = MinDebounceMs
	}
	if c.Switching.DebounceMs > MaxDebounceMs {
		note("switching.debounce_ms %d -> %d", c.Switching.DebounceMs, MaxDebounceMs)
		c.Switching.DebounceMs = MaxDebounceMs
	}
	if c.Switching.MinIntervalMs < MinIntervalFloorMs {
		note("switching.min_interval_ms %d -> %d", c.Switching.MinIntervalMs, MinIntervalFloorMs)
		c.Switching.MinIntervalMs = MinIntervalFloorMs
	}
	if c.Switching.MinIntervalMs > MinIntervalCeilMs {
		note("switching.min_interval_ms %d -> %d", c.Switching.MinIntervalMs, MinIntervalCeilMs)
		c.Switching.MinIntervalMs = MinIntervalCeilMs
	}
	if c.Indicator.Opacity < MinOpacity {
		note("indicator.opacity %v -> %v", c.Indicator.Opacity, MinOpacity)
		c.Indicator.Opacity = MinOpacity
	}
	if c.Indicator.Opacity > MaxOpacity {
		note("indicator.opacity %v -> %v", c.Indicator.Opacity, MaxOpacity)
		c.Indicator.Opacity = MaxOpacity
	}
	if c.Indicator.TimeoutMs < 0 {
		note("indicator.timeout_ms %d -> 0", c.Indicator.TimeoutMs)
		c.Indicator.TimeoutMs = 0
	}
	if c.Switcher.TimeoutMs <= 0 {
		note("switcher.timeout_ms %d -> 1000", c.Switcher.TimeoutMs)
		c.Switcher.TimeoutMs = 1000
	}
	if c.Switcher.KeyDelayMs < 0 {
		note("switcher.key_delay_ms %d -> 0", c.Switcher.KeyDelayMs)
		c.Switcher.KeyDelayMs = 0
	}

	for _, r := range []struct {
		name   string
		policy *RegionPolicy
	}{
		{"code", &c.Regions.Code},
		{"comment", &c.Regions.Comment},
		{"string", &c.Regions.String},
		{"doc", &c.Regions.Doc},
	} {
		switch r.policy.Mode {
		case "latin", "native", "auto":
		case "":
			note("regions.%s.mode empty -> auto", r.name)
			r.policy.Mode = "auto"
		default:
			note("regions.%s.mode %q -> auto", r.name, r.policy.Mode)
			r.policy.Mode = "auto"
		}
	}

	return adjusted
}

// Validate checks the configuration for errors that cannot be clamped away.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", c.Logging.Format),
		})
	}

	switch c.Logging.Output {
	case "", "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q", c.Logging.Output),
		})
	}

	switch c.Switcher.Backend {
	case "", "ibus", "fcitx5", "macism", "keytoggle", "noop":
	default:
		errs = append(errs, ValidationError{
			Field:   "switcher.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Switcher.Backend),
		})
	}

	if c.IPC.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "must not be empty",
		})
	}
	if c.IPC.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "must be at least 1",
		})
	}
	if c.IPC.MaxMessageBytes < 1024 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_message_bytes",
			Message: "must be at least 1024",
		})
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "history.path",
			Message: "must not be empty when history is enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
