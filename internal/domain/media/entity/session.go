package entity

import "time"

// State is the lifecycle state of an ephemeral photo viewing session
type State string

const (
	StateLoading        State = "loading"
	StateViewing        State = "viewing"
	StateConsumed       State = "consumed"
	StateForciblyClosed State = "forcibly_closed"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	switch s {
	case StateConsumed, StateForciblyClosed, StateFailed:
		return true
	}
	return false
}

// Signal is a capture-deterrence trigger reported by the viewing surface.
// Detection is platform-specific and lives at the edge; the session state
// machine only consumes the resulting signal.
type Signal string

const (
	SignalScreenshotKey  Signal = "screenshot_key"
	SignalVisibilityLost Signal = "visibility_lost"
	SignalForcedClose    Signal = "forced_close"
)

// Valid reports whether the signal is one the state machine understands
func (s Signal) Valid() bool {
	switch s {
	case SignalScreenshotKey, SignalVisibilityLost, SignalForcedClose:
		return true
	}
	return false
}

// Viewing duration bounds. The duration is fixed at session creation.
const (
	MinViewDuration     = 3 * time.Second
	MaxViewDuration     = 60 * time.Second
	DefaultViewDuration = 10 * time.Second
)

// Session is one viewer's single-use pass over an ephemeral photo
type Session struct {
	ID         string        `json:"id"`
	MatchID    string        `json:"match_id"`
	MediaRef   string        `json:"media_ref"`
	SenderName string        `json:"sender_name"`
	ViewerID   string        `json:"viewer_id"`
	Duration   time.Duration `json:"duration"`
	State      State         `json:"state"`
	Deadline   time.Time     `json:"deadline,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ViewedEvent is the append-only record that a session reached a viewed
// terminal state. At most one exists per session regardless of redelivery.
type ViewedEvent struct {
	SessionID        string    `json:"session_id"`
	MatchID          string    `json:"match_id"`
	MediaRef         string    `json:"media_ref"`
	ViewerID         string    `json:"viewer_id"`
	CaptureSuspected bool      `json:"capture_suspected"`
	OccurredAt       time.Time `json:"occurred_at"`
}
