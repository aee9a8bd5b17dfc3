package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
)

// MessagePostgres implements message storage for PostgreSQL
type MessagePostgres struct {
	pool *pgxpool.Pool
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(pool *pgxpool.Pool) *MessagePostgres {
	return &MessagePostgres{pool: pool}
}

// Insert stores a new message
func (r *MessagePostgres) Insert(ctx context.Context, msg *entity.Message) error {
	query := `
		INSERT INTO messages (id, match_id, sender_id, text, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.MatchID,
		msg.SenderID,
		msg.Text,
		msg.SentAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return nil
}

// CountUnread returns the number of unread messages addressed to the viewer.
// A single filtered aggregate, not a point query per candidate message.
func (r *MessagePostgres) CountUnread(ctx context.Context, matchID, viewerID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE match_id = $1 AND sender_id <> $2 AND read_at IS NULL
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, matchID, viewerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}

	return count, nil
}

// MarkRead marks all messages addressed to the viewer as read
func (r *MessagePostgres) MarkRead(ctx context.Context, matchID, viewerID string) error {
	query := `
		UPDATE messages
		SET read_at = $3
		WHERE match_id = $1 AND sender_id <> $2 AND read_at IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, matchID, viewerID, time.Now()); err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}

	return nil
}

// GetByMatchID retrieves messages for a match, newest first
func (r *MessagePostgres) GetByMatchID(ctx context.Context, matchID string, limit, offset int) ([]entity.Message, error) {
	query := `
		SELECT id, match_id, sender_id, text, sent_at, read_at, created_at
		FROM messages
		WHERE match_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, matchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]entity.Message, error) {
	var messages []entity.Message

	for rows.Next() {
		var msg entity.Message
		var readAt *time.Time

		err := rows.Scan(
			&msg.ID,
			&msg.MatchID,
			&msg.SenderID,
			&msg.Text,
			&msg.SentAt,
			&readAt,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.ReadAt = readAt
		messages = append(messages, msg)
	}

	return messages, nil
}
