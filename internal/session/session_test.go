package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"imeswitchd/internal/config"
	"imeswitchd/internal/gate"
	"imeswitchd/internal/mode"
	"imeswitchd/internal/switcher"
)

const sample = `package main

// greeting text
var greeting = "你好世界"

func main() {}
`

// posCJKString sits inside sample's string literal.
var posCJKString = cursor{line: 3, column: 17}

type cursor struct {
	line, column int
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Switching.DebounceMs = 10
	cfg.Switching.MinIntervalMs = 0
	return cfg
}

func newTestRegistry(t *testing.T, cfg *config.Config) (*Registry, *switcher.Recorder) {
	t.Helper()
	rec := switcher.NewRecorder()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(cfg, rec, log)
	t.Cleanup(r.Close)
	return r, rec
}

// recordCounter counts completed decision cycles.
type recordCounter struct {
	mu      sync.Mutex
	records []SwitchRecord
}

func (c *recordCounter) add(rec SwitchRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *recordCounter) snapshot() []SwitchRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SwitchRecord, len(c.records))
	copy(out, c.records)
	return out
}

// nextOfType drains the channel until a notification of the wanted type
// arrives, skipping others.
func nextOfType(t *testing.T, ch <-chan Notification, want NotificationType) Notification {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case n := <-ch:
			if n.Type == want {
				return n
			}
		case <-deadline:
			t.Fatalf("no %v notification before deadline", want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFocusGainedRunsImmediateCycle(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	// Cursor defaults to the start of the document, which is code.
	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 || calls[0] != mode.Latin {
		t.Fatalf("backend calls = %v, want [latin]", calls)
	}
}

func TestCursorMovesCoalesce(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())
	counter := &recordCounter{}
	r.SetRecordCallback(counter.add)

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}

	// A burst of moves within the debounce window yields exactly one cycle,
	// at the final position.
	for col := 16; col <= 20; col++ {
		if err := r.CursorMoved("s1", posCJKString.line, col, time.Now()); err != nil {
			t.Fatalf("CursorMoved: %v", err)
		}
	}

	waitFor(t, func() bool { return len(counter.snapshot()) > 0 })
	time.Sleep(50 * time.Millisecond)

	records := counter.snapshot()
	if len(records) != 1 {
		t.Fatalf("cycles = %d, want 1", len(records))
	}
	if records[0].Region != mode.RegionString || records[0].Target != mode.Native {
		t.Errorf("record = %+v, want string region with native target", records[0])
	}
	if calls := rec.Calls(); len(calls) != 1 || calls[0] != mode.Native {
		t.Errorf("backend calls = %v, want [native]", calls)
	}
}

func TestCloseCancelsPendingCycle(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	if err := r.CursorMoved("s1", posCJKString.line, posCJKString.column, time.Now()); err != nil {
		t.Fatalf("CursorMoved: %v", err)
	}
	r.CloseSurface("s1")

	time.Sleep(100 * time.Millisecond)
	if calls := rec.Calls(); len(calls) != 0 {
		t.Errorf("backend calls after close = %v, want none", calls)
	}
}

func TestFocusLostCancelsPendingCycle(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	if err := r.CursorMoved("s1", posCJKString.line, posCJKString.column, time.Now()); err != nil {
		t.Fatalf("CursorMoved: %v", err)
	}
	if err := r.FocusLost("s1", time.Now()); err != nil {
		t.Fatalf("FocusLost: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if calls := rec.Calls(); len(calls) != 0 {
		t.Errorf("backend calls after focus lost = %v, want none", calls)
	}
}

func TestAutoSwitchOffKeepsFocusCycles(t *testing.T) {
	cfg := testConfig()
	cfg.Switching.AutoSwitch = false
	r, rec := newTestRegistry(t, cfg)
	counter := &recordCounter{}
	r.SetRecordCallback(counter.add)

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}

	// Cursor-driven cycles run but may not switch.
	if err := r.CursorMoved("s1", posCJKString.line, posCJKString.column, time.Now()); err != nil {
		t.Fatalf("CursorMoved: %v", err)
	}
	waitFor(t, func() bool { return len(counter.snapshot()) > 0 })
	if calls := rec.Calls(); len(calls) != 0 {
		t.Fatalf("backend calls from cursor cycle = %v, want none", calls)
	}
	counts := r.SuppressionCounts()
	if counts[gate.SuppressDisabled.String()] == 0 {
		t.Errorf("suppression counts = %v, want suppress_disabled > 0", counts)
	}

	// Focus gain still switches: the user is about to type there.
	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained: %v", err)
	}
	if calls := rec.Calls(); len(calls) != 1 || calls[0] != mode.Native {
		t.Fatalf("backend calls after focus = %v, want [native]", calls)
	}
}

func TestFocusChangeNotifiesSubscribers(t *testing.T) {
	r, _ := newTestRegistry(t, testConfig())
	events := r.Subscribe()

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}

	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained: %v", err)
	}
	n := nextOfType(t, events, FocusChanged)
	if n.SurfaceID != "s1" || !n.Focused {
		t.Fatalf("notification = %+v, want s1 focused", n)
	}

	if err := r.FocusLost("s1", time.Now()); err != nil {
		t.Fatalf("FocusLost: %v", err)
	}
	n = nextOfType(t, events, FocusChanged)
	if n.SurfaceID != "s1" || n.Focused {
		t.Fatalf("notification = %+v, want s1 unfocused", n)
	}
}

func TestCloseLeavesSiblingPendingCycle(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())

	for _, id := range []string{"a", "b"} {
		if err := r.OpenSurface(id, "go", "editor", []byte(sample)); err != nil {
			t.Fatalf("OpenSurface(%s): %v", id, err)
		}
	}

	// b has a cycle pending when a closes; the close must not cancel it.
	if err := r.CursorMoved("b", posCJKString.line, posCJKString.column, time.Now()); err != nil {
		t.Fatalf("CursorMoved: %v", err)
	}
	r.CloseSurface("a")

	waitFor(t, func() bool { return len(rec.Calls()) == 1 })
	if calls := rec.Calls(); calls[0] != mode.Native {
		t.Fatalf("backend calls = %v, want [native]", calls)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].ID != "b" {
		t.Fatalf("snapshot = %+v, want only b", snap)
	}
	if snap[0].LogicalMode != mode.Native {
		t.Errorf("b logical mode = %v, want native", snap[0].LogicalMode)
	}
}

func TestSurfacesHaveIndependentState(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())

	for _, id := range []string{"a", "b"} {
		if err := r.OpenSurface(id, "go", "editor", []byte(sample)); err != nil {
			t.Fatalf("OpenSurface(%s): %v", id, err)
		}
	}

	// Both surfaces start with an undetermined logical mode, so the same
	// target executes on each rather than being suppressed as redundant on
	// the second.
	if err := r.FocusGained("a", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := r.FocusGained("b", time.Now()); err != nil {
		t.Fatal(err)
	}

	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("backend calls = %v, want one per surface", calls)
	}
}

func TestFailureNotifiesAndAllowsRetry(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())
	events := r.Subscribe()

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}

	boom := errors.New("backend down")
	rec.FailWith(boom)

	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained: %v", err)
	}

	n := nextOfType(t, events, SwitchFailed)
	if !errors.Is(n.Err, boom) {
		t.Fatalf("notification err = %v", n.Err)
	}

	// The backend recovers; the same target must still be attempted because
	// the failed switch did not advance the logical mode.
	rec.FailWith(nil)
	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained retry: %v", err)
	}

	n = nextOfType(t, events, ModeChanged)
	if n.Mode != mode.Latin {
		t.Fatalf("notification = %+v, want mode_changed latin", n)
	}
}

func TestDisabledSuppressesSwitching(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())
	r.SetEnabled(false)

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained: %v", err)
	}

	if calls := rec.Calls(); len(calls) != 0 {
		t.Errorf("backend calls while disabled = %v, want none", calls)
	}
	counts := r.SuppressionCounts()
	if counts[gate.SuppressDisabled.String()] == 0 {
		t.Errorf("suppression counts = %v, want suppress_disabled > 0", counts)
	}
}

func TestReopenReplacesDocument(t *testing.T) {
	r, _ := newTestRegistry(t, testConfig())

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	if err := r.OpenSurface("s1", "go", "editor", []byte("package other\n")); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].ID != "s1" {
		t.Fatalf("snapshot = %+v, want single surface s1", snap)
	}
}

func TestOpenSurfaceUnsupportedLanguage(t *testing.T) {
	r, _ := newTestRegistry(t, testConfig())

	if err := r.OpenSurface("s1", "cobol", "editor", nil); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestEventsOnUnknownSurface(t *testing.T) {
	r, _ := newTestRegistry(t, testConfig())

	if err := r.CursorMoved("nope", 0, 0, time.Now()); !errors.Is(err, ErrSurfaceNotFound) {
		t.Errorf("CursorMoved err = %v, want ErrSurfaceNotFound", err)
	}
	if err := r.UpdateDocument("nope", nil); !errors.Is(err, ErrSurfaceNotFound) {
		t.Errorf("UpdateDocument err = %v, want ErrSurfaceNotFound", err)
	}
	// CloseSurface is a no-op for unknown IDs.
	r.CloseSurface("nope")
}

func TestUpdateDocumentChangesClassification(t *testing.T) {
	r, rec := newTestRegistry(t, testConfig())
	counter := &recordCounter{}
	r.SetRecordCallback(counter.add)

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	replacement := "package main\n\nvar x = 1\n"
	if err := r.UpdateDocument("s1", []byte(replacement)); err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}

	if err := r.CursorMoved("s1", 2, 5, time.Now()); err != nil {
		t.Fatalf("CursorMoved: %v", err)
	}
	waitFor(t, func() bool { return len(counter.snapshot()) > 0 })

	records := counter.snapshot()
	if records[0].Region != mode.RegionCode {
		t.Errorf("region = %v, want code", records[0].Region)
	}
	if calls := rec.Calls(); len(calls) != 1 || calls[0] != mode.Latin {
		t.Errorf("backend calls = %v, want [latin]", calls)
	}
}

func TestSnapshotReportsLogicalMode(t *testing.T) {
	r, _ := newTestRegistry(t, testConfig())

	if err := r.OpenSurface("s1", "go", "editor", []byte(sample)); err != nil {
		t.Fatalf("OpenSurface: %v", err)
	}
	if err := r.FocusGained("s1", time.Now()); err != nil {
		t.Fatalf("FocusGained: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d", len(snap))
	}
	if snap[0].LogicalMode != mode.Latin {
		t.Errorf("logical mode = %v, want latin", snap[0].LogicalMode)
	}
	if !snap[0].Focused {
		t.Error("surface should be focused")
	}
	if snap[0].Cycles != 1 {
		t.Errorf("cycles = %d, want 1", snap[0].Cycles)
	}
}
