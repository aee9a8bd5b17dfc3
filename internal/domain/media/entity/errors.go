package entity

import "errors"

// Domain errors for ephemeral media sessions
var (
	ErrMediaSessionNotFound = errors.New("media session not found")
	ErrMediaUnavailable     = errors.New("media is no longer available")
	ErrInvalidDuration      = errors.New("view duration out of range")
	ErrInvalidSignal        = errors.New("unknown capture-deterrence signal")
)
