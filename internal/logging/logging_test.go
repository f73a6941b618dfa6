package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imeswitchd/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileOutputJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	l, err := New(config.LoggingConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("surface opened", "surface", "s1")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "surface opened" || entry["surface"] != "s1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestLevelFiltersOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	l, err := New(config.LoggingConfig{
		Level:    "warn",
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")
	l.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Errorf("log contains filtered entries: %s", data)
	}
	if !strings.Contains(string(data), "visible") {
		t.Errorf("log missing warn entry: %s", data)
	}
}

func TestUnknownLevelRejected(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "shout", Output: "stderr"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWithComponent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	l, err := New(config.LoggingConfig{
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithComponent("ipc").Info("listening")
	l.Close()

	data, _ := os.ReadFile(path)
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "ipc" {
		t.Errorf("component = %v, want ipc", entry["component"])
	}
}

func TestRotatorRotatesAtSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")

	r, err := NewRotator(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	defer r.Close()

	// Force the limit down so the test does not write a megabyte.
	r.maxBytes = 64

	line := []byte(strings.Repeat("x", 32) + "\n")
	for i := 0; i < 5; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "rot-*.log"))
	if len(matches) == 0 {
		t.Fatal("expected at least one rotated backup")
	}
	if len(matches) > 2 {
		t.Errorf("backups = %d, want at most 2", len(matches))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() > 64 {
		t.Errorf("current log size = %d, want <= 64", info.Size())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("dropped")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
