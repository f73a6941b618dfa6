// Package switcher abstracts the OS input method switch. Backends are
// best-effort: a switch call may fail, and no backend promises a reliable
// read of the currently active mode. Callers track their own logical mode
// and treat CurrentMode as advisory.
package switcher

import (
	"context"
	"errors"

	"imeswitchd/internal/config"
	"imeswitchd/internal/mode"
)

var (
	// ErrUnsupportedMode is returned for a target the backend cannot select.
	ErrUnsupportedMode = errors.New("switcher: unsupported mode")

	// ErrUnavailable is returned when the backend's framework is not
	// reachable (e.g. no session bus, helper binary missing).
	ErrUnavailable = errors.New("switcher: backend unavailable")
)

// Switcher executes input mode switches on the host OS.
type Switcher interface {
	// Name identifies the backend ("ibus", "fcitx5", "macism",
	// "keytoggle", "noop").
	Name() string

	// Available reports whether the backend can currently switch.
	Available() bool

	// SupportedModes lists the modes this backend can select.
	SupportedModes() []mode.InputMode

	// CurrentMode returns the backend's best guess at the active mode.
	// Backends without read-back return Undetermined; callers must not
	// depend on anything better.
	CurrentMode(ctx context.Context) mode.InputMode

	// SwitchTo selects the given mode. Best-effort: success means the
	// request was delivered, not that the OS state is confirmed.
	SwitchTo(ctx context.Context, m mode.InputMode) error
}

// New selects a backend: an explicit configuration override first, then
// platform detection. The noop backend is the fallback when nothing on the
// host can switch.
func New(cfg *config.Config) Switcher {
	if cfg.Switcher.Backend == "noop" {
		return NewNoop()
	}
	return newPlatformSwitcher(cfg)
}

// Noop is a backend that accepts every switch and does nothing. Used when no
// real backend is available and in tests.
type Noop struct{}

// NewNoop returns the noop backend.
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) Name() string {
	return "noop"
}

func (*Noop) Available() bool {
	return true
}

func (*Noop) SupportedModes() []mode.InputMode {
	return []mode.InputMode{mode.Latin, mode.Native}
}

func (*Noop) CurrentMode(context.Context) mode.InputMode {
	return mode.Undetermined
}

func (*Noop) SwitchTo(_ context.Context, m mode.InputMode) error {
	if m == mode.Undetermined {
		return ErrUnsupportedMode
	}
	return nil
}
