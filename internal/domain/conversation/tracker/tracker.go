// Package tracker turns countdown ticks into conversation timer state
// transitions for one viewing participant.
package tracker

import (
	"sync"
	"time"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
	"github.com/flintapp/flint-core/internal/timer"
)

// StateChange describes a timer state transition delivered to the listener
type StateChange struct {
	Timer     entity.TimerState
	Nudge     entity.NudgePhase
	Display   entity.TimerDisplay
	Remaining time.Duration
}

// Listener receives state changes. Called from the tracker's goroutine.
type Listener func(change StateChange)

// Tracker consumes countdown ticks for one conversation window and notifies
// its listener whenever the timer state or nudge phase changes. Remaining
// time only ever decreases within a run; the single permitted upward jump is
// a reopen, which the owner expresses by calling Track again with the new
// window end.
type Tracker struct {
	engine      *timer.Engine
	viewerPrime bool
	otherPrime  bool
	onChange    Listener

	mu         sync.Mutex
	generation int
	lastTimer  entity.TimerState
	lastNudge  entity.NudgePhase
	started    bool
	wg         sync.WaitGroup
}

// New creates a tracker for a viewer of a conversation
func New(engine *timer.Engine, viewerIsPrime, otherIsPrime bool, onChange Listener) *Tracker {
	return &Tracker{
		engine:      engine,
		viewerPrime: viewerIsPrime,
		otherPrime:  otherIsPrime,
		onChange:    onChange,
	}
}

// Track starts (or restarts, after a reopen) tracking toward the window end.
// A fully-Prime pair has an unlimited session: the listener is told once and
// no countdown is started.
func (t *Tracker) Track(windowEnd time.Time) {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.lastTimer = ""
	t.lastNudge = ""
	t.started = true
	t.mu.Unlock()

	if t.viewerPrime && t.otherPrime {
		t.engine.Stop()
		t.onChange(StateChange{
			Timer:   entity.TimerUnlimited,
			Nudge:   entity.NudgeNone,
			Display: entity.DisplayFor(entity.TimerUnlimited, t.viewerPrime),
		})
		return
	}

	ticks := t.engine.Start(windowEnd)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for remaining := range ticks {
			t.apply(gen, remaining)
		}
	}()
}

// Stop halts tracking. No listener callback fires after Stop returns.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.generation++
	t.started = false
	t.mu.Unlock()

	t.engine.Stop()
	t.wg.Wait()
}

// apply classifies a tick and notifies the listener on change. Ticks from a
// superseded run are dropped by the generation check.
func (t *Tracker) apply(gen int, remaining time.Duration) {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return
	}

	state := entity.ClassifyForPair(remaining, t.viewerPrime, t.otherPrime)
	nudge := entity.NudgeFor(remaining, t.viewerPrime)

	if state == t.lastTimer && nudge == t.lastNudge {
		t.mu.Unlock()
		return
	}
	t.lastTimer = state
	t.lastNudge = nudge
	t.mu.Unlock()

	t.onChange(StateChange{
		Timer:     state,
		Nudge:     nudge,
		Display:   entity.DisplayFor(state, t.viewerPrime),
		Remaining: remaining,
	})
}
