// Package timer provides the countdown primitive that drives both the
// conversation window display and the self-destructing media session.
package timer

import (
	"sync"
	"time"
)

// DefaultInterval is the tick cadence. One second keeps display drift under
// a single tick without excessive wake-ups.
const DefaultInterval = time.Second

// Option configures an Engine
type Option func(*Engine)

// WithInterval overrides the tick cadence (used by tests)
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock overrides the time source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine emits the remaining time until a deadline on a fixed cadence.
// It emits max(0, deadline-now) per tick, emits zero exactly once, then
// closes the stream. Restarting with a new deadline supersedes the previous
// run: no tick computed against an old deadline is delivered after a restart,
// and no tick is delivered after Stop.
type Engine struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	stop chan struct{} // closes the current run, nil when idle
}

// New creates a countdown engine
func New(opts ...Option) *Engine {
	e := &Engine{
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins ticking toward the deadline and returns the stream of
// remaining durations. Any in-flight run is discarded first. The first value
// is emitted immediately; the stream closes after the single zero emission.
func (e *Engine) Start(deadline time.Time) <-chan time.Duration {
	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
	}
	stop := make(chan struct{})
	e.stop = stop
	e.mu.Unlock()

	// Unbuffered: a superseded run can never leave a stale tick behind
	// for a consumer to pick up after a restart.
	out := make(chan time.Duration)
	go e.run(deadline, stop, out)
	return out
}

// Stop cancels the current run. No tick is delivered after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.mu.Unlock()
}

func (e *Engine) run(deadline time.Time, stop <-chan struct{}, out chan<- time.Duration) {
	defer close(out)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	if done := e.emit(deadline, stop, out); done {
		return
	}

	for {
		select {
		case <-ticker.C:
			if done := e.emit(deadline, stop, out); done {
				return
			}
		case <-stop:
			return
		}
	}
}

// emit sends the current remaining time. Returns true when the run is over,
// either because zero was emitted or the run was cancelled.
func (e *Engine) emit(deadline time.Time, stop <-chan struct{}, out chan<- time.Duration) bool {
	remaining := deadline.Sub(e.now())
	if remaining < 0 {
		remaining = 0
	}

	// Re-check cancellation before sending so a superseded run cannot
	// deliver a stale tick.
	select {
	case <-stop:
		return true
	default:
	}

	select {
	case out <- remaining:
	case <-stop:
		return true
	}

	return remaining == 0
}
