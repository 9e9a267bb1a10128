package telemetry

import "sync"

// Health is a one-shot liveness signal: the first successful telemetry
// publish of a boot fires it, and the rollback guard waits on it. Further
// signals are no-ops.
type Health struct {
	once sync.Once
	ch   chan struct{}
}

func NewHealth() *Health {
	return &Health{ch: make(chan struct{})}
}

// Signal marks the boot as healthy. Safe to call any number of times from
// any goroutine.
func (h *Health) Signal() {
	h.once.Do(func() { close(h.ch) })
}

// Done returns a channel closed once the boot has proven healthy.
func (h *Health) Done() <-chan struct{} { return h.ch }

// Fired reports whether the signal has already fired.
func (h *Health) Fired() bool {
	select {
	case <-h.ch:
		return true
	default:
		return false
	}
}
