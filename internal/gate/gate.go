// Package gate decides whether a proposed input mode switch executes or is
// suppressed, and tracks the logical current mode per surface.
package gate

import (
	"context"
	"sync"
	"time"

	"imeswitchd/internal/mode"
	"imeswitchd/internal/switcher"
)

// Decision is the outcome of one switch request.
type Decision int

const (
	// Execute means the switch was dispatched to the platform backend.
	Execute Decision = iota
	// SuppressDisabled means switching is globally disabled.
	SuppressDisabled
	// SuppressNoOpinion means the policy had no opinion (undetermined target).
	SuppressNoOpinion
	// SuppressRedundant means the target equals the logical current mode.
	SuppressRedundant
	// SuppressRateLimited means an identical request executed too recently.
	SuppressRateLimited
	// ExecuteFailed means the platform backend was called and reported failure.
	ExecuteFailed
)

// String returns the snake_case name of the decision.
func (d Decision) String() string {
	switch d {
	case Execute:
		return "execute"
	case SuppressDisabled:
		return "suppress_disabled"
	case SuppressNoOpinion:
		return "suppress_no_opinion"
	case SuppressRedundant:
		return "suppress_redundant"
	case SuppressRateLimited:
		return "suppress_rate_limited"
	case ExecuteFailed:
		return "execute_failed"
	default:
		return "unknown"
	}
}

// Suppressed reports whether the decision did not reach the backend.
func (d Decision) Suppressed() bool {
	return d != Execute && d != ExecuteFailed
}

// State tracks one surface's switch history. It is owned by the surface's
// session; all access happens from within that session's serialized task
// sequence.
type State struct {
	mu sync.Mutex

	// logicalCurrent is the gate's tracked belief about the active mode.
	// It advances only on a successful backend call, never speculatively,
	// so a failed switch leaves a retry possible.
	logicalCurrent mode.InputMode

	// lastSwitch records the last executed switch per target+context pair,
	// for rate limiting.
	lastSwitch map[switchKey]time.Time

	lastTarget  mode.InputMode
	lastContext string
	lastAt      time.Time
}

type switchKey struct {
	target  mode.InputMode
	context string
}

// NewState returns a State with an undetermined logical mode.
func NewState() *State {
	return &State{
		logicalCurrent: mode.Undetermined,
		lastSwitch:     make(map[switchKey]time.Time),
	}
}

// LogicalMode returns the tracked logical current mode.
func (s *State) LogicalMode() mode.InputMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logicalCurrent
}

// SetLogicalMode overrides the tracked mode. Used when an external actor is
// known to have switched (e.g. an explicit user command through the control
// CLI); the pipeline itself never calls this.
func (s *State) SetLogicalMode(m mode.InputMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logicalCurrent = m
}

// Gate applies the decision rules for one surface.
type Gate struct {
	state    *State
	switcher switcher.Switcher
}

// New creates a gate over the given state and platform backend.
func New(state *State, sw switcher.Switcher) *Gate {
	return &Gate{state: state, switcher: sw}
}

// State returns the gate's state.
func (g *Gate) State() *State {
	return g.state
}

// Decide evaluates a switch request and, when nothing suppresses it, calls
// the platform backend. Rules are evaluated in order: disabled, no opinion,
// redundant, rate limited, execute.
//
// On a successful execute the state is committed atomically: last-switch
// bookkeeping and the logical current mode both advance. On backend failure
// the state is left untouched and ExecuteFailed is returned with the cause.
func (g *Gate) Decide(ctx context.Context, req mode.SwitchRequest, enabled bool, minInterval time.Duration) (Decision, error) {
	if !enabled {
		return SuppressDisabled, nil
	}
	if req.Target == mode.Undetermined {
		return SuppressNoOpinion, nil
	}

	g.state.mu.Lock()
	if req.Target == g.state.logicalCurrent {
		g.state.mu.Unlock()
		return SuppressRedundant, nil
	}
	key := switchKey{target: req.Target, context: req.ContextTag}
	if last, ok := g.state.lastSwitch[key]; ok && req.RequestedAt.Sub(last) < minInterval {
		g.state.mu.Unlock()
		return SuppressRateLimited, nil
	}
	g.state.mu.Unlock()

	// The backend call happens outside the state lock; per-surface
	// serialization guarantees no concurrent Decide for this state.
	if err := g.switcher.SwitchTo(ctx, req.Target); err != nil {
		return ExecuteFailed, err
	}

	g.state.mu.Lock()
	g.state.logicalCurrent = req.Target
	g.state.lastSwitch[key] = req.RequestedAt
	g.state.lastTarget = req.Target
	g.state.lastContext = req.ContextTag
	g.state.lastAt = req.RequestedAt
	g.state.mu.Unlock()

	return Execute, nil
}

// LastSwitch returns the most recently committed switch, if any.
func (s *State) LastSwitch() (target mode.InputMode, contextTag string, at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAt.IsZero() {
		return mode.Undetermined, "", time.Time{}, false
	}
	return s.lastTarget, s.lastContext, s.lastAt, true
}
