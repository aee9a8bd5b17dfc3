package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
)

// SessionPostgres implements conversation session storage for PostgreSQL
type SessionPostgres struct {
	pool *pgxpool.Pool
}

// NewSessionPostgres creates a new PostgreSQL session repository
func NewSessionPostgres(pool *pgxpool.Pool) *SessionPostgres {
	return &SessionPostgres{pool: pool}
}

const sessionColumns = `
	match_id, user_a_id, user_a_prime, user_b_id, user_b_prime,
	window_start, window_end, extension_count, created_at, updated_at
`

// Create inserts a new conversation session with its initial window
func (r *SessionPostgres) Create(ctx context.Context, sess *entity.ConversationSession) error {
	query := `
		INSERT INTO conversation_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		sess.MatchID,
		sess.Participants[0].UserID,
		sess.Participants[0].IsPrime,
		sess.Participants[1].UserID,
		sess.Participants[1].IsPrime,
		sess.WindowStart,
		sess.WindowEnd,
		sess.ExtensionCount,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	return nil
}

// GetByMatchID retrieves a session by match ID, nil when absent
func (r *SessionPostgres) GetByMatchID(ctx context.Context, matchID string) (*entity.ConversationSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM conversation_sessions
		WHERE match_id = $1
	`

	row := r.pool.QueryRow(ctx, query, matchID)
	return scanSession(row)
}

// ExtendWindow replaces the messaging window with a conditional write keyed
// on the extension counter. Returns false without error when another writer
// already extended the session; the caller re-reads and adopts that window
// instead of compounding its own.
func (r *SessionPostgres) ExtendWindow(ctx context.Context, matchID string, expectedExtensions int, start, end time.Time) (bool, error) {
	query := `
		UPDATE conversation_sessions
		SET window_start = $2,
		    window_end = $3,
		    extension_count = extension_count + 1,
		    updated_at = $4
		WHERE match_id = $1
		  AND extension_count = $5
	`

	tag, err := r.pool.Exec(ctx, query, matchID, start, end, time.Now(), expectedExtensions)
	if err != nil {
		return false, fmt.Errorf("extending window: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListExpiredBetween returns sessions whose window lapsed inside the given
// range, excluding fully-Prime pairs, which never expire.
func (r *SessionPostgres) ListExpiredBetween(ctx context.Context, from, to time.Time, limit int) ([]entity.ConversationSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM conversation_sessions
		WHERE window_end > $1 AND window_end <= $2
		  AND NOT (user_a_prime AND user_b_prime)
		ORDER BY window_end
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("querying expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []entity.ConversationSession
	for rows.Next() {
		sess, err := scanSessionValues(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*entity.ConversationSession, error) {
	sess, err := scanSessionValues(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func scanSessionValues(row pgx.Row) (*entity.ConversationSession, error) {
	var sess entity.ConversationSession

	err := row.Scan(
		&sess.MatchID,
		&sess.Participants[0].UserID,
		&sess.Participants[0].IsPrime,
		&sess.Participants[1].UserID,
		&sess.Participants[1].IsPrime,
		&sess.WindowStart,
		&sess.WindowEnd,
		&sess.ExtensionCount,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	return &sess, nil
}
