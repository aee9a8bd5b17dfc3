package entity

import "errors"

// Domain errors for conversation sessions
var (
	ErrSessionNotFound     = errors.New("conversation session not found")
	ErrNotAuthorized       = errors.New("not authorized to reopen this conversation")
	ErrConversationExpired = errors.New("conversation window has expired")
	ErrReopenInFlight      = errors.New("a reopen request is already in progress")
	ErrEmptyMessage        = errors.New("message text cannot be empty")
	ErrMessageTooLong      = errors.New("message exceeds maximum length")

	// ErrTransient marks persistence failures worth retrying with backoff
	ErrTransient = errors.New("persistence temporarily unavailable")
)
