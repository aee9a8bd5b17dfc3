package entity

import "time"

// TimerState classifies how much time is left in a conversation window
type TimerState string

const (
	TimerActive    TimerState = "active"
	TimerAttention TimerState = "attention"
	TimerUrgency   TimerState = "urgency"
	TimerCritical  TimerState = "critical"
	TimerFinal     TimerState = "final"
	TimerExpired   TimerState = "expired"

	// TimerUnlimited is the neutral state for a fully-Prime pair, whose
	// sessions never expire and whose timer is never displayed.
	TimerUnlimited TimerState = "unlimited"
)

// Classification thresholds, inclusive at each boundary
const (
	ThresholdFinal     = time.Minute
	ThresholdCritical  = 5 * time.Minute
	ThresholdUrgency   = 10 * time.Minute
	ThresholdAttention = 20 * time.Minute
)

// ClassifyRemaining maps remaining window time to a TimerState.
// Boundaries are inclusive: exactly 5 minutes left is critical, not urgency.
func ClassifyRemaining(remaining time.Duration) TimerState {
	switch {
	case remaining <= 0:
		return TimerExpired
	case remaining <= ThresholdFinal:
		return TimerFinal
	case remaining <= ThresholdCritical:
		return TimerCritical
	case remaining <= ThresholdUrgency:
		return TimerUrgency
	case remaining <= ThresholdAttention:
		return TimerAttention
	default:
		return TimerActive
	}
}

// ClassifyForPair maps remaining time to a TimerState for a participant pair.
// Two Prime participants are always unlimited regardless of the window.
func ClassifyForPair(remaining time.Duration, viewerIsPrime, otherIsPrime bool) TimerState {
	if viewerIsPrime && otherIsPrime {
		return TimerUnlimited
	}
	return ClassifyRemaining(remaining)
}

// NudgePhase classifies the escalating pressure copy shown to a Free viewer
type NudgePhase string

const (
	NudgeNone     NudgePhase = "none"
	NudgeMedium   NudgePhase = "medium"
	NudgeHigh     NudgePhase = "high"
	NudgeCritical NudgePhase = "critical"
	NudgeExpired  NudgePhase = "expired"
)

// NudgeFor maps remaining time to a NudgePhase for the viewing participant.
// Nudges only ever activate for Free viewers; a Prime viewer is always none.
func NudgeFor(remaining time.Duration, viewerIsPrime bool) NudgePhase {
	if viewerIsPrime {
		return NudgeNone
	}
	switch {
	case remaining <= 0:
		return NudgeExpired
	case remaining <= ThresholdFinal:
		return NudgeCritical
	case remaining <= ThresholdCritical:
		return NudgeHigh
	case remaining <= ThresholdUrgency:
		return NudgeMedium
	default:
		return NudgeNone
	}
}

// PulseLevel controls how insistently the timer widget animates
type PulseLevel int

const (
	PulseNone PulseLevel = iota
	PulseSoft
	PulseHard
)

// TimerDisplay is the presentation descriptor for a TimerState
type TimerDisplay struct {
	Show      bool       `json:"show"`
	Label     string     `json:"label"`
	Sublabel  string     `json:"sublabel"`
	IconClass string     `json:"icon_class"`
	Pulse     PulseLevel `json:"pulse"`
}

// timerDisplays is the fixed TimerState -> descriptor table. The final and
// critical entries must pulse harder than attention.
var timerDisplays = map[TimerState]TimerDisplay{
	TimerActive:    {Show: true, Label: "Time remaining", Sublabel: "Keep the conversation going", IconClass: "timer-calm", Pulse: PulseNone},
	TimerAttention: {Show: true, Label: "Clock is ticking", Sublabel: "Don't leave them waiting", IconClass: "timer-warm", Pulse: PulseSoft},
	TimerUrgency:   {Show: true, Label: "Running out of time", Sublabel: "Send a message before it's too late", IconClass: "timer-warm", Pulse: PulseSoft},
	TimerCritical:  {Show: true, Label: "Almost over", Sublabel: "This chat is about to close", IconClass: "timer-hot", Pulse: PulseHard},
	TimerFinal:     {Show: true, Label: "Final minute", Sublabel: "Last chance to reply", IconClass: "timer-hot", Pulse: PulseHard},
	TimerExpired:   {Show: true, Label: "Time's up", Sublabel: "This conversation has expired", IconClass: "timer-dead", Pulse: PulseNone},
}

// DisplayFor returns the presentation descriptor for a state. The timer is
// suppressed entirely for Prime viewers and for the unlimited state.
func DisplayFor(state TimerState, viewerIsPrime bool) TimerDisplay {
	if viewerIsPrime || state == TimerUnlimited {
		return TimerDisplay{Show: false}
	}
	return timerDisplays[state]
}

// OverlayKind selects what an expired conversation shows in place of the
// messaging input, depending on the tier combination.
type OverlayKind string

const (
	// OverlayNone: both Prime. The pair should never have expired; render
	// nothing rather than treating it as an error.
	OverlayNone OverlayKind = "none"
	// OverlayReopen: the viewer is Prime and may extend the window.
	OverlayReopen OverlayKind = "reopen"
	// OverlayWaiting: the other side is Prime; only they can reopen.
	OverlayWaiting OverlayKind = "waiting"
	// OverlayUpsell: both Free; the viewer is offered Prime instead.
	OverlayUpsell OverlayKind = "upsell"
)

// OverlayFor returns the expired-state overlay for a viewer given both tiers
func OverlayFor(viewerIsPrime, otherIsPrime bool) OverlayKind {
	switch {
	case viewerIsPrime && otherIsPrime:
		return OverlayNone
	case viewerIsPrime:
		return OverlayReopen
	case otherIsPrime:
		return OverlayWaiting
	default:
		return OverlayUpsell
	}
}
