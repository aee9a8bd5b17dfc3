package entity

import "time"

// Tier represents a user's subscription tier
type Tier string

const (
	TierFree  Tier = "free"
	TierPrime Tier = "prime"
)

// ExtensionDuration is the fixed length of a reopened messaging window
const ExtensionDuration = 60 * time.Minute

// DefaultWindowDuration is the initial messaging window granted when a match forms
const DefaultWindowDuration = 24 * time.Hour

// ParticipantRef identifies one side of a matched conversation
type ParticipantRef struct {
	UserID  string `json:"user_id"`
	IsPrime bool   `json:"is_prime"`
}

// ConversationSession is the time-boxed messaging window between two matched users.
// The window fields are the only state mutated after creation, and only through
// the reopen operation.
type ConversationSession struct {
	MatchID        string            `json:"match_id"`
	Participants   [2]ParticipantRef `json:"participants"`
	WindowStart    time.Time         `json:"window_start"`
	WindowEnd      time.Time         `json:"window_end"`
	ExtensionCount int               `json:"extension_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Participant returns the participant with the given user ID
func (s *ConversationSession) Participant(userID string) (ParticipantRef, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return ParticipantRef{}, false
}

// Other returns the participant opposite the given user ID
func (s *ConversationSession) Other(userID string) (ParticipantRef, bool) {
	if _, ok := s.Participant(userID); !ok {
		return ParticipantRef{}, false
	}
	for _, p := range s.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return ParticipantRef{}, false
}

// BothPrime reports whether both participants are on the Prime tier.
// Such pairs have unlimited sessions and never expire.
func (s *ConversationSession) BothPrime() bool {
	return s.Participants[0].IsPrime && s.Participants[1].IsPrime
}

// RemainingAt returns the time left in the current window, never negative
func (s *ConversationSession) RemainingAt(now time.Time) time.Duration {
	remaining := s.WindowEnd.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpiredAt reports whether messaging is blocked at the given instant.
// A fully-Prime pair never expires.
func (s *ConversationSession) ExpiredAt(now time.Time) bool {
	if s.BothPrime() {
		return false
	}
	return !now.Before(s.WindowEnd)
}
