//go:build darwin

package switcher

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"imeswitchd/internal/config"
	"imeswitchd/internal/mode"
)

// Default macOS input source IDs. The ABC layout ships with every install;
// the native source must be configured per user.
const defaultLatinSource = "com.apple.keylayout.ABC"

// newPlatformSwitcher returns the macism backend. macOS has no supported
// switching API for background processes, so a helper binary does the
// TIS (Text Input Source) call.
func newPlatformSwitcher(cfg *config.Config) Switcher {
	return newMacismSwitcher(cfg)
}

// macismSwitcher shells out to the macism helper to select input sources
// by ID.
type macismSwitcher struct {
	latinSource  string
	nativeSource string
	timeout      time.Duration
}

func newMacismSwitcher(cfg *config.Config) *macismSwitcher {
	latin := cfg.Switcher.LatinEngine
	if latin == "" {
		latin = defaultLatinSource
	}
	return &macismSwitcher{
		latinSource:  latin,
		nativeSource: cfg.Switcher.NativeEngine,
		timeout:      cfg.SwitchTimeout(),
	}
}

func (s *macismSwitcher) Name() string {
	return "macism"
}

func (s *macismSwitcher) Available() bool {
	_, err := exec.LookPath("macism")
	return err == nil
}

func (s *macismSwitcher) SupportedModes() []mode.InputMode {
	modes := []mode.InputMode{mode.Latin}
	if s.nativeSource != "" {
		modes = append(modes, mode.Native)
	}
	return modes
}

// CurrentMode asks macism for the active source ID. The answer can be stale
// the moment it is read; callers treat it as advisory.
func (s *macismSwitcher) CurrentMode(ctx context.Context) mode.InputMode {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "macism").Output()
	if err != nil {
		return mode.Undetermined
	}
	switch string(trimNewline(out)) {
	case s.latinSource:
		return mode.Latin
	case s.nativeSource:
		return mode.Native
	default:
		return mode.Undetermined
	}
}

func (s *macismSwitcher) SwitchTo(ctx context.Context, m mode.InputMode) error {
	var source string
	switch m {
	case mode.Latin:
		source = s.latinSource
	case mode.Native:
		source = s.nativeSource
	default:
		return ErrUnsupportedMode
	}
	if source == "" {
		return fmt.Errorf("%w: no input source configured for %s", ErrUnsupportedMode, m)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := exec.CommandContext(ctx, "macism", source).Run(); err != nil {
		return fmt.Errorf("switcher: macism %s: %w", source, err)
	}
	return nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
