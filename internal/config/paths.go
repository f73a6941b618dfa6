package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/imeswitchd/
//   - Linux:   $XDG_DATA_HOME/imeswitchd/ or ~/.local/share/imeswitchd/
//   - Windows: %APPDATA%\imeswitchd\
//
// IMESWITCHD_DATA_DIR overrides all of the above.
func PlatformDataDir() string {
	if dir := os.Getenv("IMESWITCHD_DATA_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "imeswitchd")
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "imeswitchd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "imeswitchd")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "imeswitchd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "imeswitchd")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".imeswitchd")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "imeswitchd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "imeswitchd")
	default:
		// macOS and Windows keep config next to data.
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "imeswitchd")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "imeswitchd", "logs")
		}
		return filepath.Join(PlatformDataDir(), "logs")
	default:
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			return filepath.Join(state, "imeswitchd")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "state", "imeswitchd")
	}
}

// PlatformRuntimeDir returns the runtime directory for sockets and PID files.
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, "imeswitchd")
		}
		return fmt.Sprintf("/tmp/imeswitchd-%d", os.Getuid())
	case "windows":
		return PlatformDataDir()
	default:
		return fmt.Sprintf("/tmp/imeswitchd-%d", os.Getuid())
	}
}

// DefaultSocketPath returns the default IPC socket path (a named pipe on
// Windows).
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\imeswitchd`
	}
	return filepath.Join(PlatformRuntimeDir(), "imeswitchd.sock")
}
