//go:build windows

package switcher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/windows"

	"imeswitchd/internal/config"
	"imeswitchd/internal/mode"
)

// Virtual key codes and keybd_event flags.
const (
	vkControl = 0x11
	vkSpace   = 0x20

	keyeventfKeyup = 0x0002
)

var (
	user32         = windows.NewLazySystemDLL("user32.dll")
	procKeybdEvent = user32.NewProc("keybd_event")
)

// newPlatformSwitcher returns the blind keystroke toggle backend. Windows
// IMEs expose no stable per-process switching API, so the backend injects
// the Ctrl+Space IME toggle and relies on the caller's redundancy gate to
// avoid double toggles.
func newPlatformSwitcher(cfg *config.Config) Switcher {
	return newKeyToggleSwitcher(cfg)
}

type keyToggleSwitcher struct {
	keyDelay time.Duration
}

func newKeyToggleSwitcher(cfg *config.Config) *keyToggleSwitcher {
	return &keyToggleSwitcher{
		keyDelay: time.Duration(cfg.Switcher.KeyDelayMs) * time.Millisecond,
	}
}

func (s *keyToggleSwitcher) Name() string {
	return "keytoggle"
}

func (s *keyToggleSwitcher) Available() bool {
	return procKeybdEvent.Find() == nil
}

func (s *keyToggleSwitcher) SupportedModes() []mode.InputMode {
	return []mode.InputMode{mode.Latin, mode.Native}
}

// CurrentMode always returns Undetermined: the toggle is blind and Windows
// offers no read-back this backend trusts.
func (s *keyToggleSwitcher) CurrentMode(context.Context) mode.InputMode {
	return mode.Undetermined
}

// SwitchTo injects a Ctrl+Space toggle. The backend cannot know which mode
// the toggle lands on; correctness depends on the gate only dispatching when
// the logical mode differs from the target.
func (s *keyToggleSwitcher) SwitchTo(_ context.Context, m mode.InputMode) error {
	if m == mode.Undetermined {
		return ErrUnsupportedMode
	}

	if err := s.keybdEvent(vkControl, 0); err != nil {
		return err
	}
	if err := s.keybdEvent(vkSpace, 0); err != nil {
		return err
	}
	time.Sleep(s.keyDelay)
	if err := s.keybdEvent(vkSpace, keyeventfKeyup); err != nil {
		return err
	}
	if err := s.keybdEvent(vkControl, keyeventfKeyup); err != nil {
		return err
	}
	return nil
}

func (s *keyToggleSwitcher) keybdEvent(vk, flags uintptr) error {
	ret, _, err := procKeybdEvent.Call(vk, 0, flags, 0)
	_ = ret // keybd_event has no meaningful return value
	if err != nil && err != windows.ERROR_SUCCESS {
		return fmt.Errorf("switcher: keybd_event: %w", err)
	}
	return nil
}
