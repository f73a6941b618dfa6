//go:build !linux && !darwin && !windows

package switcher

import "imeswitchd/internal/config"

// newPlatformSwitcher falls back to noop on platforms without a backend.
func newPlatformSwitcher(*config.Config) Switcher {
	return NewNoop()
}
