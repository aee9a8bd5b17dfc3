package entity

import "time"

// Message is a chat message inside a conversation window
type Message struct {
	ID        string     `json:"id"`
	MatchID   string     `json:"match_id"`
	SenderID  string     `json:"sender_id"`
	Text      string     `json:"text"`
	SentAt    time.Time  `json:"sent_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MaxMessageLength is the maximum length of a chat message
const MaxMessageLength = 1000

// ValidateMessageText validates the text for a message
func ValidateMessageText(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
