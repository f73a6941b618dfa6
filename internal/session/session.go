// Package session tracks editor surfaces and drives the debounced decision
// cycle for each one: classify the cursor position, resolve the target mode,
// and hand the result to the switch gate.
//
// Key behaviors:
//   - One session per surface, keyed by the plugin-assigned surface ID
//   - Trailing-edge debounce of cursor movement (150ms default)
//   - Immediate decision cycle on focus gain
//   - Per-surface serialization of decision cycles
package session

import (
	"context"
	"time"

	"imeswitchd/internal/classify"
	"imeswitchd/internal/gate"
	"imeswitchd/internal/mode"
	"imeswitchd/internal/policy"
)

// Notification is emitted to subscribers when a decision cycle reaches the
// platform backend or a surface's focus changes.
type Notification struct {
	Type       NotificationType
	SurfaceID  string
	Mode       mode.InputMode
	Region     mode.RegionKind
	Confidence float64
	Decision   gate.Decision
	Focused    bool
	Err        error
	Timestamp  time.Time
}

// NotificationType distinguishes notification types.
type NotificationType int

const (
	// ModeChanged indicates a switch executed successfully.
	ModeChanged NotificationType = iota
	// SwitchFailed indicates the platform backend reported failure.
	SwitchFailed
	// FocusChanged indicates a surface gained or lost focus. Indicator
	// clients hide on focus loss without waiting for the next cycle.
	FocusChanged
)

// String returns the wire name of the notification type.
func (t NotificationType) String() string {
	switch t {
	case ModeChanged:
		return "mode_changed"
	case SwitchFailed:
		return "switch_failed"
	case FocusChanged:
		return "focus_changed"
	default:
		return "unknown"
	}
}

// SwitchRecord describes one attempted switch for persistence.
type SwitchRecord struct {
	SurfaceID  string
	Language   string
	Region     mode.RegionKind
	Target     mode.InputMode
	Decision   gate.Decision
	Confidence float64
	At         time.Time
}

// SurfaceStatus is a point-in-time snapshot of one surface session.
type SurfaceStatus struct {
	ID          string          `json:"id"`
	App         string          `json:"app,omitempty"`
	Language    string          `json:"language"`
	Focused     bool            `json:"focused"`
	OpenedAt    time.Time       `json:"opened_at"`
	LogicalMode mode.InputMode  `json:"-"`
	LastRegion  mode.RegionKind `json:"-"`
	Cycles      uint64          `json:"cycles"`
}

// Surface is one tracked editor surface. All mutation happens under mu,
// including the decision cycle itself, so cycles for a surface never overlap.
type Surface struct {
	registry *Registry

	id       string
	app      string
	language string

	doc  *classify.Document
	gate *gate.Gate

	// Cursor position from the most recent event, in line/column form.
	line   int
	column int

	debounce *time.Timer
	focused  bool
	open     bool
	openedAt time.Time

	lastRegion mode.RegionKind
	cycles     uint64
}

// cursorMoved records the new position and (re)schedules the trailing-edge
// debounce timer. Caller holds the registry lock for this surface.
func (s *Surface) cursorMoved(line, column int, at time.Time) {
	s.line = line
	s.column = column

	if s.debounce != nil {
		s.debounce.Stop()
	}
	window := s.registry.Config().DebounceWindow()
	s.debounce = time.AfterFunc(window, func() {
		s.registry.runCycle(s, at)
	})
}

// focusGained marks the surface focused. The caller runs an immediate cycle;
// any pending debounced cycle is superseded.
func (s *Surface) focusGained() {
	s.focused = true
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// focusLost cancels any pending cycle. A switch for a surface the user has
// left would fight the next focused surface.
func (s *Surface) focusLost() {
	s.focused = false
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// dispose closes the surface. Further timer fires see open == false and
// do nothing.
func (s *Surface) dispose() {
	s.open = false
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// cycle runs one decision cycle at the surface's current cursor position.
// focusTriggered marks cycles run on focus gain, which switch even when
// cursor-driven auto switching is configured off. Caller holds the surface's
// serialization (the registry lock).
func (s *Surface) cycle(at time.Time, focusTriggered bool) (Notification, bool) {
	if !s.open || s.doc == nil {
		return Notification{}, false
	}

	cfg := s.registry.Config()

	offset := s.doc.OffsetAt(s.line, s.column)
	c := classify.Classify(s.doc, offset)
	target := policy.Resolve(c, cfg)

	req := mode.SwitchRequest{
		Target:      target,
		ContextTag:  c.Kind.String(),
		RequestedAt: at,
	}
	enabled := s.registry.enabledFor(cfg, focusTriggered)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SwitchTimeout())
	defer cancel()

	decision, err := s.gate.Decide(ctx, req, enabled, cfg.MinInterval())

	s.lastRegion = c.Kind
	s.cycles++

	s.registry.record(SwitchRecord{
		SurfaceID:  s.id,
		Language:   s.language,
		Region:     c.Kind,
		Target:     target,
		Decision:   decision,
		Confidence: c.Confidence,
		At:         at,
	})

	switch decision {
	case gate.Execute:
		s.registry.log.Info("mode switched",
			"surface", s.id,
			"mode", target.String(),
			"region", c.Kind.String(),
			"confidence", c.Confidence)
		return Notification{
			Type:       ModeChanged,
			SurfaceID:  s.id,
			Mode:       target,
			Region:     c.Kind,
			Confidence: c.Confidence,
			Decision:   decision,
			Timestamp:  at,
		}, true

	case gate.ExecuteFailed:
		s.registry.log.Warn("mode switch failed",
			"surface", s.id,
			"mode", target.String(),
			"error", err)
		return Notification{
			Type:       SwitchFailed,
			SurfaceID:  s.id,
			Mode:       target,
			Region:     c.Kind,
			Confidence: c.Confidence,
			Decision:   decision,
			Err:        err,
			Timestamp:  at,
		}, true

	default:
		s.registry.log.Debug("switch suppressed",
			"surface", s.id,
			"reason", decision.String(),
			"region", c.Kind.String())
		s.registry.countSuppression(decision)
		return Notification{}, false
	}
}

// status snapshots the surface. Caller holds the registry lock.
func (s *Surface) status() SurfaceStatus {
	return SurfaceStatus{
		ID:          s.id,
		App:         s.app,
		Language:    s.language,
		Focused:     s.focused,
		OpenedAt:    s.openedAt,
		LogicalMode: s.gate.State().LogicalMode(),
		LastRegion:  s.lastRegion,
		Cycles:      s.cycles,
	}
}
