//go:build linux

package switcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/godbus/dbus/v5"

	"imeswitchd/internal/config"
	"imeswitchd/internal/mode"
)

// D-Bus endpoints for the two supported IME frameworks.
const (
	ibusBusName   = "org.freedesktop.IBus"
	ibusPath      = "/org/freedesktop/IBus"
	ibusInterface = "org.freedesktop.IBus"

	fcitxBusName   = "org.fcitx.Fcitx5"
	fcitxPath      = "/controller"
	fcitxInterface = "org.fcitx.Fcitx5.Controller"
)

// newPlatformSwitcher picks IBus or Fcitx5 by configuration override or by
// probing the host, falling back to noop when neither framework is present.
func newPlatformSwitcher(cfg *config.Config) Switcher {
	switch cfg.Switcher.Backend {
	case "ibus":
		return newIBusSwitcher(cfg)
	case "fcitx5":
		return newFcitxSwitcher(cfg)
	}

	switch detectFramework() {
	case "fcitx5":
		return newFcitxSwitcher(cfg)
	case "ibus":
		return newIBusSwitcher(cfg)
	default:
		return NewNoop()
	}
}

// detectFramework determines which IME framework is installed. Fcitx5 is
// preferred when both are present.
func detectFramework() string {
	if _, err := os.Stat("/usr/share/fcitx5"); err == nil {
		return "fcitx5"
	}
	if _, err := exec.LookPath("fcitx5-remote"); err == nil {
		return "fcitx5"
	}
	if _, err := os.Stat("/usr/share/ibus/component"); err == nil {
		return "ibus"
	}
	if _, err := exec.LookPath("ibus-daemon"); err == nil {
		return "ibus"
	}
	return ""
}

// dbusSwitcher holds the session bus state shared by both Linux backends.
type dbusSwitcher struct {
	conn         *dbus.Conn
	latinEngine  string
	nativeEngine string
	timeout      time.Duration
}

func (d *dbusSwitcher) connect() error {
	if d.conn != nil {
		return nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("%w: session bus: %v", ErrUnavailable, err)
	}
	d.conn = conn
	return nil
}

func (d *dbusSwitcher) engineFor(m mode.InputMode) (string, error) {
	switch m {
	case mode.Latin:
		if d.latinEngine == "" {
			return "", fmt.Errorf("%w: no latin engine configured", ErrUnsupportedMode)
		}
		return d.latinEngine, nil
	case mode.Native:
		if d.nativeEngine == "" {
			return "", fmt.Errorf("%w: no native engine configured", ErrUnsupportedMode)
		}
		return d.nativeEngine, nil
	default:
		return "", ErrUnsupportedMode
	}
}

func (d *dbusSwitcher) callWithTimeout(ctx context.Context, busName string, path dbus.ObjectPath, method string, args ...any) error {
	if err := d.connect(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	call := d.conn.Object(busName, path).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("switcher: %s: %w", method, call.Err)
	}
	return nil
}

// ibusSwitcher selects IBus global engines over the session bus.
type ibusSwitcher struct {
	dbusSwitcher
}

func newIBusSwitcher(cfg *config.Config) *ibusSwitcher {
	latin := cfg.Switcher.LatinEngine
	if latin == "" {
		latin = "xkb:us::eng"
	}
	return &ibusSwitcher{dbusSwitcher{
		latinEngine:  latin,
		nativeEngine: cfg.Switcher.NativeEngine,
		timeout:      cfg.SwitchTimeout(),
	}}
}

func (s *ibusSwitcher) Name() string {
	return "ibus"
}

func (s *ibusSwitcher) Available() bool {
	if err := s.connect(); err != nil {
		return false
	}
	var owner string
	err := s.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, ibusBusName).Store(&owner)
	return err == nil && owner != ""
}

func (s *ibusSwitcher) SupportedModes() []mode.InputMode {
	modes := []mode.InputMode{mode.Latin}
	if s.nativeEngine != "" {
		modes = append(modes, mode.Native)
	}
	return modes
}

// CurrentMode always returns Undetermined: reading the global engine back
// reliably would race the very switches this backend issues.
func (s *ibusSwitcher) CurrentMode(context.Context) mode.InputMode {
	return mode.Undetermined
}

func (s *ibusSwitcher) SwitchTo(ctx context.Context, m mode.InputMode) error {
	engine, err := s.engineFor(m)
	if err != nil {
		return err
	}
	return s.callWithTimeout(ctx, ibusBusName, ibusPath, ibusInterface+".SetGlobalEngine", engine)
}

// fcitxSwitcher drives the Fcitx5 controller. With engine names configured
// it selects them directly; otherwise it falls back to activating and
// deactivating the IME.
type fcitxSwitcher struct {
	dbusSwitcher
}

func newFcitxSwitcher(cfg *config.Config) *fcitxSwitcher {
	return &fcitxSwitcher{dbusSwitcher{
		latinEngine:  cfg.Switcher.LatinEngine,
		nativeEngine: cfg.Switcher.NativeEngine,
		timeout:      cfg.SwitchTimeout(),
	}}
}

func (s *fcitxSwitcher) Name() string {
	return "fcitx5"
}

func (s *fcitxSwitcher) Available() bool {
	if err := s.connect(); err != nil {
		return false
	}
	var owner string
	err := s.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, fcitxBusName).Store(&owner)
	return err == nil && owner != ""
}

func (s *fcitxSwitcher) SupportedModes() []mode.InputMode {
	return []mode.InputMode{mode.Latin, mode.Native}
}

func (s *fcitxSwitcher) CurrentMode(context.Context) mode.InputMode {
	return mode.Undetermined
}

func (s *fcitxSwitcher) SwitchTo(ctx context.Context, m mode.InputMode) error {
	if engine, err := s.engineFor(m); err == nil {
		return s.callWithTimeout(ctx, fcitxBusName, fcitxPath, fcitxInterface+".SetCurrentIM", engine)
	}

	switch m {
	case mode.Latin:
		return s.callWithTimeout(ctx, fcitxBusName, fcitxPath, fcitxInterface+".Deactivate")
	case mode.Native:
		return s.callWithTimeout(ctx, fcitxBusName, fcitxPath, fcitxInterface+".Activate")
	default:
		return ErrUnsupportedMode
	}
}
