// Package upsell maps conversation friction points to Prime call-to-action
// copy. It is stateless: a pure function of {context, tier}.
package upsell

import "github.com/flintapp/flint-core/internal/domain/conversation/entity"

// Destination is the single opaque route the Prime call-to-action points at.
// The core does not know what is there.
const Destination = "/prime"

// Prompt is the copy and call-to-action for one friction point
type Prompt struct {
	Context     string `json:"context"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	CTA         string `json:"cta"`
	Destination string `json:"destination"`
}

// nudgePrompts escalates with the nudge phase; only Free viewers see any
var nudgePrompts = map[entity.NudgePhase]Prompt{
	entity.NudgeMedium: {
		Context:     "nudge_medium",
		Title:       "Ten minutes left",
		Body:        "Prime members chat without time limits.",
		CTA:         "See Prime",
		Destination: Destination,
	},
	entity.NudgeHigh: {
		Context:     "nudge_high",
		Title:       "Five minutes left",
		Body:        "Don't let this one slip away. Go unlimited with Prime.",
		CTA:         "Go unlimited",
		Destination: Destination,
	},
	entity.NudgeCritical: {
		Context:     "nudge_critical",
		Title:       "Under a minute",
		Body:        "This conversation is about to close forever.",
		CTA:         "Keep it open",
		Destination: Destination,
	},
	entity.NudgeExpired: {
		Context:     "nudge_expired",
		Title:       "Time ran out",
		Body:        "Prime members can reopen expired conversations.",
		CTA:         "Get Prime",
		Destination: Destination,
	},
}

// expiredUpsell is shown when both sides are Free and the window lapsed
var expiredUpsell = Prompt{
	Context:     "expired_both_free",
	Title:       "This chat has expired",
	Body:        "Upgrade to Prime to reopen it for another hour.",
	CTA:         "Reopen with Prime",
	Destination: Destination,
}

// ForNudge returns the escalating prompt for a nudge phase, if any
func ForNudge(phase entity.NudgePhase) (Prompt, bool) {
	p, ok := nudgePrompts[phase]
	return p, ok
}

// ForState picks the prompt implied by a viewer's session state. Prime
// viewers never see one.
func ForState(overlay entity.OverlayKind, nudge entity.NudgePhase, viewerIsPrime bool) (Prompt, bool) {
	if viewerIsPrime {
		return Prompt{}, false
	}
	if overlay == entity.OverlayUpsell {
		return expiredUpsell, true
	}
	return ForNudge(nudge)
}
