package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writePidFile records the daemon's PID, refusing to clobber a live
// daemon's file. A PID file whose process is gone is stale and replaced.
func writePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	if pid, err := ReadPidFile(path); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("daemon already running with pid %d", pid)
		}
		os.Remove(path)
	}

	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPidFile returns the PID recorded at path.
func ReadPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

func removePidFile(path string) {
	if path != "" {
		os.Remove(path)
	}
}
