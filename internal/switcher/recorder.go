package switcher

import (
	"context"
	"sync"

	"imeswitchd/internal/mode"
)

// Recorder is a test backend that records every switch request and can be
// made to fail on demand.
type Recorder struct {
	mu       sync.Mutex
	calls    []mode.InputMode
	failWith error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Name() string {
	return "recorder"
}

func (r *Recorder) Available() bool {
	return true
}

func (r *Recorder) SupportedModes() []mode.InputMode {
	return []mode.InputMode{mode.Latin, mode.Native}
}

func (r *Recorder) CurrentMode(context.Context) mode.InputMode {
	return mode.Undetermined
}

// FailWith makes subsequent SwitchTo calls return err. Pass nil to restore
// success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *Recorder) SwitchTo(_ context.Context, m mode.InputMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.calls = append(r.calls, m)
	return nil
}

// Calls returns the modes successfully switched to, in order.
func (r *Recorder) Calls() []mode.InputMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mode.InputMode, len(r.calls))
	copy(out, r.calls)
	return out
}
