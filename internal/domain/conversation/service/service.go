package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
	"github.com/flintapp/flint-core/internal/metrics"
)

// SessionRepository defines the interface for conversation session storage
type SessionRepository interface {
	Create(ctx context.Context, sess *entity.ConversationSession) error
	GetByMatchID(ctx context.Context, matchID string) (*entity.ConversationSession, error)
	ExtendWindow(ctx context.Context, matchID string, expectedExtensions int, start, end time.Time) (bool, error)
	ListExpiredBetween(ctx context.Context, from, to time.Time, limit int) ([]entity.ConversationSession, error)
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Insert(ctx context.Context, msg *entity.Message) error
	GetByMatchID(ctx context.Context, matchID string, limit, offset int) ([]entity.Message, error)
	CountUnread(ctx context.Context, matchID, viewerID string) (int64, error)
	MarkRead(ctx context.Context, matchID, viewerID string) error
}

// ExpiryNotifier receives expiry events found by the sweeper, typically to
// push them onto the real-time channel. Delivery is at-least-once; consumers
// must tolerate redelivery.
type ExpiryNotifier interface {
	SessionExpired(ctx context.Context, sess entity.ConversationSession)
}

// Service owns the conversation window business rules: what a viewer sees at
// any remaining time, and what happens at zero.
type Service struct {
	sessions  SessionRepository
	messages  MessageRepository
	notifier  ExpiryNotifier
	metrics   *metrics.Set
	window    time.Duration
	extension time.Duration
	now       func() time.Time
}

// Option configures the service
type Option func(*Service)

// WithClock overrides the time source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithInitialWindow overrides the window length granted at match time
func WithInitialWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithExtension overrides the reopen window length
func WithExtension(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.extension = d
		}
	}
}

// WithNotifier sets the expiry event sink
func WithNotifier(n ExpiryNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics sets the metric collectors
func WithMetrics(m *metrics.Set) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a conversation service
func New(sessions SessionRepository, messages MessageRepository, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		messages:  messages,
		window:    entity.DefaultWindowDuration,
		extension: entity.ExtensionDuration,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSessionInput represents input for provisioning a session at match time
type CreateSessionInput struct {
	MatchID        string
	Participants   [2]entity.ParticipantRef
	WindowDuration time.Duration
}

// CreateSession provisions the conversation window when a match forms
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*entity.ConversationSession, error) {
	window := in.WindowDuration
	if window <= 0 {
		window = s.window
	}

	matchID := in.MatchID
	if matchID == "" {
		matchID = uuid.New().String()
	}

	now := s.now()
	sess := &entity.ConversationSession{
		MatchID:      matchID,
		Participants: in.Participants,
		WindowStart:  now,
		WindowEnd:    now.Add(window),
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, transient(err)
	}

	return sess, nil
}

// GetSession retrieves a session by match ID
func (s *Service) GetSession(ctx context.Context, matchID string) (*entity.ConversationSession, error) {
	sess, err := s.sessions.GetByMatchID(ctx, matchID)
	if err != nil {
		return nil, transient(err)
	}
	if sess == nil {
		return nil, entity.ErrSessionNotFound
	}
	return sess, nil
}

// SessionStateInput represents input for reading a viewer's session state
type SessionStateInput struct {
	MatchID  string
	ViewerID string
}

// SessionStateOutput is everything the messaging surface needs to render for
// one viewer: timer classification, nudge phase, display descriptor, and the
// expired-state overlay.
type SessionStateOutput struct {
	Session   *entity.ConversationSession
	Remaining time.Duration
	Timer     entity.TimerState
	Nudge     entity.NudgePhase
	Display   entity.TimerDisplay
	Overlay   entity.OverlayKind
	Expired   bool
	Unread    int64
}

// SessionState classifies the session for a viewing participant
func (s *Service) SessionState(ctx context.Context, in SessionStateInput) (*SessionStateOutput, error) {
	sess, err := s.GetSession(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}

	viewer, ok := sess.Participant(in.ViewerID)
	if !ok {
		return nil, entity.ErrNotAuthorized
	}
	other, _ := sess.Other(in.ViewerID)

	now := s.now()
	remaining := sess.RemainingAt(now)
	expired := sess.ExpiredAt(now)

	out := &SessionStateOutput{
		Session:   sess,
		Remaining: remaining,
		Timer:     entity.ClassifyForPair(remaining, viewer.IsPrime, other.IsPrime),
		Nudge:     entity.NudgeFor(remaining, viewer.IsPrime),
		Expired:   expired,
		Overlay:   entity.OverlayNone,
	}
	out.Display = entity.DisplayFor(out.Timer, viewer.IsPrime)

	if expired {
		out.Overlay = entity.OverlayFor(viewer.IsPrime, other.IsPrime)
	}

	if s.messages != nil {
		unread, err := s.messages.CountUnread(ctx, in.MatchID, in.ViewerID)
		if err != nil {
			return nil, transient(err)
		}
		out.Unread = unread
	}

	return out, nil
}

// ReopenInput represents input for extending an expired window
type ReopenInput struct {
	MatchID     string
	RequesterID string
}

// reopenAttempts bounds the conditional-write loop. Two is enough: a lost
// race means someone else just opened a fresh window, which we adopt.
const reopenAttempts = 2

// Reopen grants a new fixed-length window. Prime-exclusive, and idempotent
// under concurrent double-invocation: the write is conditional on the
// extension counter, and a losing writer returns the window the winner
// established rather than compounding it.
func (s *Service) Reopen(ctx context.Context, in ReopenInput) (*entity.ConversationSession, error) {
	sess, err := s.GetSession(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}

	requester, ok := sess.Participant(in.RequesterID)
	if !ok || !requester.IsPrime {
		return nil, entity.ErrNotAuthorized
	}

	for attempt := 0; attempt < reopenAttempts; attempt++ {
		now := s.now()
		if !sess.ExpiredAt(now) {
			// Window already open: either a stale client reopening after a
			// push delivered the new window, or the other participant won
			// the race. Their window stands.
			if attempt > 0 {
				s.metrics.ReopenConflict()
			}
			return sess, nil
		}

		ok, err := s.sessions.ExtendWindow(ctx, in.MatchID, sess.ExtensionCount, now, now.Add(s.extension))
		if err != nil {
			return nil, transient(err)
		}
		if ok {
			sess.WindowStart = now
			sess.WindowEnd = now.Add(s.extension)
			sess.ExtensionCount++
			s.metrics.Reopened()
			return sess, nil
		}

		// Conditional write missed: re-read and reconcile.
		sess, err = s.GetSession(ctx, in.MatchID)
		if err != nil {
			return nil, err
		}
	}

	// Two losses in a row still leaves a coherent window to adopt.
	s.metrics.ReopenConflict()
	return sess, nil
}

// SendMessageInput represents input for sending a message
type SendMessageInput struct {
	MatchID  string
	SenderID string
	Text     string
}

// SendMessage stores a message if the sender's window is still open
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*entity.Message, error) {
	if err := entity.ValidateMessageText(in.Text); err != nil {
		return nil, err
	}

	sess, err := s.GetSession(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}

	if _, ok := sess.Participant(in.SenderID); !ok {
		return nil, entity.ErrNotAuthorized
	}

	if sess.ExpiredAt(s.now()) {
		return nil, entity.ErrConversationExpired
	}

	msg := &entity.Message{
		ID:       uuid.New().String(),
		MatchID:  in.MatchID,
		SenderID: in.SenderID,
		Text:     in.Text,
		SentAt:   s.now(),
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, transient(err)
	}

	return msg, nil
}

// GetMessagesInput represents input for listing messages
type GetMessagesInput struct {
	MatchID  string
	ViewerID string
	Limit    int
	Offset   int
}

// GetMessages lists messages for a participant, newest first
func (s *Service) GetMessages(ctx context.Context, in GetMessagesInput) ([]entity.Message, error) {
	sess, err := s.GetSession(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}

	if _, ok := sess.Participant(in.ViewerID); !ok {
		return nil, entity.ErrNotAuthorized
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}

	msgs, err := s.messages.GetByMatchID(ctx, in.MatchID, limit, in.Offset)
	if err != nil {
		return nil, transient(err)
	}

	return msgs, nil
}

// MarkRead marks the viewer's incoming messages as read
func (s *Service) MarkRead(ctx context.Context, matchID, viewerID string) error {
	if err := s.messages.MarkRead(ctx, matchID, viewerID); err != nil {
		return transient(err)
	}
	return nil
}

// SweepExpired finds sessions whose window lapsed within the lookback horizon
// and notifies the expiry sink. Returns the number of sessions seen. Fired on
// a schedule; redelivery across overlapping sweeps is expected and tolerated
// downstream.
func (s *Service) SweepExpired(ctx context.Context, lookback time.Duration, limit int) (int, error) {
	now := s.now()
	expired, err := s.sessions.ListExpiredBetween(ctx, now.Add(-lookback), now, limit)
	if err != nil {
		return 0, transient(err)
	}

	for _, sess := range expired {
		s.metrics.SessionExpired()
		if s.notifier != nil {
			s.notifier.SessionExpired(ctx, sess)
		}
	}

	return len(expired), nil
}

// transient translates a persistence failure into the retryable taxonomy
// error. Presentation never sees a raw transport error.
func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, entity.ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %v", entity.ErrTransient, err)
}
