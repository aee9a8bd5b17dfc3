package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flintapp/flint-core/internal/domain/media/entity"
)

// EventPostgres implements the append-only viewed-event sink for PostgreSQL
type EventPostgres struct {
	pool *pgxpool.Pool
}

// NewEventPostgres creates a new PostgreSQL viewed-event sink
func NewEventPostgres(pool *pgxpool.Pool) *EventPostgres {
	return &EventPostgres{pool: pool}
}

// RecordViewed appends the viewed event for a session. Keyed on session ID
// so redelivered writes collapse to one row.
func (r *EventPostgres) RecordViewed(ctx context.Context, ev entity.ViewedEvent) error {
	query := `
		INSERT INTO media_viewed_events (
			session_id, match_id, media_ref, viewer_id, capture_suspected, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		ev.SessionID,
		ev.MatchID,
		ev.MediaRef,
		ev.ViewerID,
		ev.CaptureSuspected,
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("recording viewed event: %w", err)
	}

	return nil
}

// WasViewed reports whether the viewer has already consumed the media.
// Backs the single-use rule across remounts and process restarts.
func (r *EventPostgres) WasViewed(ctx context.Context, mediaRef, viewerID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM media_viewed_events
			WHERE media_ref = $1 AND viewer_id = $2
		)
	`

	var viewed bool
	if err := r.pool.QueryRow(ctx, query, mediaRef, viewerID).Scan(&viewed); err != nil {
		return false, fmt.Errorf("checking viewed state: %w", err)
	}

	return viewed, nil
}
