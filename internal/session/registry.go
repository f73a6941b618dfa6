package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"imeswitchd/internal/classify"
	"imeswitchd/internal/config"
	"imeswitchd/internal/gate"
	"imeswitchd/internal/switcher"
)

var (
	// ErrSurfaceNotFound is returned for events on an unknown surface.
	ErrSurfaceNotFound = errors.New("session: surface not found")

	// ErrClosed is returned for operations on a closed registry.
	ErrClosed = errors.New("session: registry closed")
)

// Registry owns all surface sessions and the notification fan-out.
//
// A single mutex serializes every decision cycle across all surfaces. There
// is one physical input method per seat, so concurrent cycles would race on
// it regardless of per-surface state.
type Registry struct {
	mu sync.Mutex

	log *slog.Logger
	sw  switcher.Switcher

	surfaces    map[string]*Surface
	subscribers []chan Notification

	// enabled is the runtime toggle flipped by the control socket. It is
	// independent of the configured switching.enabled flag.
	enabled bool

	suppressions map[gate.Decision]uint64
	onRecord     func(SwitchRecord)
	closed       bool

	// cfg is guarded separately so cycles running under mu can read it
	// while a reload replaces it.
	cfgMu sync.RWMutex
	cfg   *config.Config
}

// NewRegistry creates a registry over the given platform backend.
func NewRegistry(cfg *config.Config, sw switcher.Switcher, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:          log,
		sw:           sw,
		cfg:          cfg,
		surfaces:     make(map[string]*Surface),
		suppressions: make(map[gate.Decision]uint64),
		enabled:      true,
	}
}

// Config returns the current configuration.
func (r *Registry) Config() *config.Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// SetConfig replaces the configuration. In-flight cycles keep the snapshot
// they started with; the next cycle sees the new one.
func (r *Registry) SetConfig(cfg *config.Config) {
	r.cfgMu.Lock()
	r.cfg = cfg
	r.cfgMu.Unlock()
	r.log.Info("configuration applied",
		"debounce_ms", cfg.Switching.DebounceMs,
		"min_interval_ms", cfg.Switching.MinIntervalMs)
}

// OpenSurface registers a surface. Reopening an existing ID replaces its
// document content rather than erroring, so a reconnecting plugin can replay
// its open events safely.
func (r *Registry) OpenSurface(id, language, app string, source []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if s, ok := r.surfaces[id]; ok {
		s.app = app
		if s.language == language {
			return s.doc.SetSource(source)
		}
		// Language changed on reopen: rebuild the document, keep the
		// gate state so rate limiting survives.
		doc, err := classify.NewDocument(language, source)
		if err != nil {
			return err
		}
		s.language = language
		s.doc = doc
		return nil
	}

	doc, err := classify.NewDocument(language, source)
	if err != nil {
		return err
	}

	state := gate.NewState()
	s := &Surface{
		registry: r,
		id:       id,
		app:      app,
		language: language,
		doc:      doc,
		gate:     gate.New(state, r.sw),
		open:     true,
		openedAt: time.Now(),
	}
	r.surfaces[id] = s

	r.log.Info("surface opened", "surface", id, "language", language, "app", app)
	return nil
}

// CloseSurface disposes a surface. Closing an unknown or already-closed
// surface is a no-op.
func (r *Registry) CloseSurface(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[id]
	if !ok {
		return
	}
	s.dispose()
	delete(r.surfaces, id)
	r.log.Info("surface closed", "surface", id)
}

// UpdateDocument replaces a surface's document content.
func (r *Registry) UpdateDocument(id string, source []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[id]
	if !ok {
		return ErrSurfaceNotFound
	}
	return s.doc.SetSource(source)
}

// CursorMoved records a cursor position and schedules a debounced decision
// cycle. Rapid successive calls coalesce into one cycle at the last position.
func (r *Registry) CursorMoved(id string, line, column int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[id]
	if !ok {
		return ErrSurfaceNotFound
	}
	s.cursorMoved(line, column, at)
	return nil
}

// FocusGained marks the surface focused and runs a decision cycle
// immediately, without waiting out the debounce window.
func (r *Registry) FocusGained(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[id]
	if !ok {
		return ErrSurfaceNotFound
	}
	s.focusGained()
	r.notifyLocked(Notification{
		Type:      FocusChanged,
		SurfaceID: id,
		Focused:   true,
		Timestamp: at,
	})
	if n, ok := s.cycle(at, true); ok {
		r.notifyLocked(n)
	}
	return nil
}

// FocusLost cancels any pending cycle for the surface.
func (r *Registry) FocusLost(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[id]
	if !ok {
		return ErrSurfaceNotFound
	}
	s.focusLost()
	r.notifyLocked(Notification{
		Type:      FocusChanged,
		SurfaceID: id,
		Focused:   false,
		Timestamp: at,
	})
	return nil
}

// runCycle is the debounce timer's entry point.
func (r *Registry) runCycle(s *Surface, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if n, ok := s.cycle(at, false); ok {
		r.notifyLocked(n)
	}
}

// Subscribe returns a channel of switch notifications. Slow subscribers
// drop notifications rather than stalling the pipeline.
func (r *Registry) Subscribe() <-chan Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Notification, 100)
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// notifyLocked fans a notification out to subscribers. Caller holds mu.
func (r *Registry) notifyLocked(n Notification) {
	for _, ch := range r.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// SetEnabled flips the runtime switching toggle.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled != enabled {
		r.enabled = enabled
		r.log.Info("automatic switching toggled", "enabled", enabled)
	}
}

// Enabled reports the runtime switching toggle.
func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// enabledFor combines the runtime toggle with the configured flags. With
// auto_switch off, only focus-triggered cycles may switch; the debounced
// cursor cycles are suppressed. Caller holds mu.
func (r *Registry) enabledFor(cfg *config.Config, focusTriggered bool) bool {
	if !r.enabled || !cfg.Switching.Enabled {
		return false
	}
	return focusTriggered || cfg.Switching.AutoSwitch
}

// countSuppression bumps the counter for a suppressed decision. Caller
// holds mu.
func (r *Registry) countSuppression(d gate.Decision) {
	r.suppressions[d]++
}

// SuppressionCounts returns a snapshot of suppression counters keyed by
// decision name.
func (r *Registry) SuppressionCounts() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]uint64, len(r.suppressions))
	for d, n := range r.suppressions {
		out[d.String()] = n
	}
	return out
}

// SetRecordCallback sets the function called with every completed decision
// cycle, for history persistence.
func (r *Registry) SetRecordCallback(fn func(SwitchRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRecord = fn
}

// record invokes the record callback. Caller holds mu.
func (r *Registry) record(rec SwitchRecord) {
	if r.onRecord != nil {
		r.onRecord(rec)
	}
}

// Snapshot returns the status of all open surfaces, ordered by ID.
func (r *Registry) Snapshot() []SurfaceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SurfaceStatus, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		out = append(out, s.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close disposes all surfaces and closes subscriber channels. The registry
// cannot be reused afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for id, s := range r.surfaces {
		s.dispose()
		delete(r.surfaces, id)
	}
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = nil
}
