package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
	"github.com/flintapp/flint-core/internal/domain/conversation/service"
	"github.com/flintapp/flint-core/internal/domain/upsell"
)

// IdentityProvider supplies the current tier for a user. Tier is read-only
// context for this core, refreshed from the auth side on each operation so a
// mid-session upgrade takes effect without re-matching.
type IdentityProvider interface {
	Tier(ctx context.Context, userID string) (entity.Tier, error)
}

// ConversationService defines the interface for the conversation service
type ConversationService interface {
	CreateSession(ctx context.Context, in service.CreateSessionInput) (*entity.ConversationSession, error)
	SessionState(ctx context.Context, in service.SessionStateInput) (*service.SessionStateOutput, error)
	Reopen(ctx context.Context, in service.ReopenInput) (*entity.ConversationSession, error)
	SendMessage(ctx context.Context, in service.SendMessageInput) (*entity.Message, error)
	GetMessages(ctx context.Context, in service.GetMessagesInput) ([]entity.Message, error)
	MarkRead(ctx context.Context, matchID, viewerID string) error
}

// Policy guards conversation operations with identity context, keeps reopen
// re-entrant-safe per client, and retries transient persistence failures.
type Policy struct {
	svc      ConversationService
	identity IdentityProvider
	prompts  *upsell.PromptStore

	mu      sync.Mutex
	pending map[string]struct{} // match IDs with a reopen in flight
}

// New creates a conversation policy
func New(svc ConversationService, identity IdentityProvider, prompts *upsell.PromptStore) *Policy {
	return &Policy{
		svc:      svc,
		identity: identity,
		prompts:  prompts,
		pending:  make(map[string]struct{}),
	}
}

// CreateSessionInput represents input for provisioning a session
type CreateSessionInput struct {
	MatchID string
	UserA   string
	UserB   string
}

// CreateSession provisions a conversation window, resolving both tiers
func (p *Policy) CreateSession(ctx context.Context, in CreateSessionInput) (*entity.ConversationSession, error) {
	tierA, err := p.identity.Tier(ctx, in.UserA)
	if err != nil {
		return nil, err
	}
	tierB, err := p.identity.Tier(ctx, in.UserB)
	if err != nil {
		return nil, err
	}

	return p.svc.CreateSession(ctx, service.CreateSessionInput{
		MatchID: in.MatchID,
		Participants: [2]entity.ParticipantRef{
			{UserID: in.UserA, IsPrime: tierA == entity.TierPrime},
			{UserID: in.UserB, IsPrime: tierB == entity.TierPrime},
		},
	})
}

// SessionStateInput represents input for reading a viewer's session state
type SessionStateInput struct {
	MatchID  string
	ViewerID string
}

// SessionStateOutput carries the service state plus the upsell prompt for
// any monetizable friction point the state implies.
type SessionStateOutput struct {
	State  *service.SessionStateOutput
	Prompt *upsell.Prompt
}

// SessionState reads the viewer's session state and stages any upsell prompt
func (p *Policy) SessionState(ctx context.Context, in SessionStateInput) (*SessionStateOutput, error) {
	state, err := p.svc.SessionState(ctx, service.SessionStateInput{
		MatchID:  in.MatchID,
		ViewerID: in.ViewerID,
	})
	if err != nil {
		return nil, err
	}

	out := &SessionStateOutput{State: state}

	viewer, _ := state.Session.Participant(in.ViewerID)
	if prompt, ok := upsell.ForState(state.Overlay, state.Nudge, viewer.IsPrime); ok {
		out.Prompt = &prompt
		if p.prompts != nil {
			p.prompts.Put(in.ViewerID, prompt)
		}
	}

	return out, nil
}

// ReopenInput represents input for extending an expired window
type ReopenInput struct {
	MatchID     string
	RequesterID string
}

// Reopen extends an expired window. One attempt per match may be in flight
// at a time from this process; duplicates fail fast so the affordance stays
// disabled while pending. Transient persistence failures are retried with
// exponential backoff before surfacing.
func (p *Policy) Reopen(ctx context.Context, in ReopenInput) (*entity.ConversationSession, error) {
	p.mu.Lock()
	if _, inFlight := p.pending[in.MatchID]; inFlight {
		p.mu.Unlock()
		return nil, entity.ErrReopenInFlight
	}
	p.pending[in.MatchID] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, in.MatchID)
		p.mu.Unlock()
	}()

	tier, err := p.identity.Tier(ctx, in.RequesterID)
	if err != nil {
		return nil, err
	}
	if tier != entity.TierPrime {
		// The affordance is never rendered for Free users; this is the
		// defensive controller-side check.
		return nil, entity.ErrNotAuthorized
	}

	var sess *entity.ConversationSession
	operation := func() error {
		var opErr error
		sess, opErr = p.svc.Reopen(ctx, service.ReopenInput{
			MatchID:     in.MatchID,
			RequesterID: in.RequesterID,
		})
		if opErr != nil && !errors.Is(opErr, entity.ErrTransient) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newReopenBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return sess, nil
}

func newReopenBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// SendMessageInput represents input for sending a message
type SendMessageInput struct {
	MatchID  string
	SenderID string
	Text     string
}

// SendMessage relays a message through the window guard
func (p *Policy) SendMessage(ctx context.Context, in SendMessageInput) (*entity.Message, error) {
	return p.svc.SendMessage(ctx, service.SendMessageInput{
		MatchID:  in.MatchID,
		SenderID: in.SenderID,
		Text:     in.Text,
	})
}

// GetMessagesInput represents input for listing messages
type GetMessagesInput struct {
	MatchID  string
	ViewerID string
	Limit    int
	Offset   int
}

// GetMessages lists messages for a participant
func (p *Policy) GetMessages(ctx context.Context, in GetMessagesInput) ([]entity.Message, error) {
	return p.svc.GetMessages(ctx, service.GetMessagesInput{
		MatchID:  in.MatchID,
		ViewerID: in.ViewerID,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
}

// MarkRead marks the viewer's incoming messages as read
func (p *Policy) MarkRead(ctx context.Context, matchID, viewerID string) error {
	return p.svc.MarkRead(ctx, matchID, viewerID)
}
