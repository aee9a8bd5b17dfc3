package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flintapp/flint-core/internal/domain/media/entity"
	"github.com/flintapp/flint-core/internal/metrics"
	"github.com/flintapp/flint-core/internal/timer"
)

// EventSink defines the append-only viewed-event store
type EventSink interface {
	RecordViewed(ctx context.Context, ev entity.ViewedEvent) error
	WasViewed(ctx context.Context, mediaRef, viewerID string) (bool, error)
}

// MediaStore resolves single-use view URLs for stored photos
type MediaStore interface {
	ViewURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SurfaceGuard is the scoped resource held while a photo is on screen
// (scroll suspension, interaction suppression). Acquired when viewing
// starts and released exactly once on every exit path.
type SurfaceGuard interface {
	Acquire(sessionID string)
	Release(sessionID string)
}

// NoopGuard is the default guard for surfaces that manage their own locking
type NoopGuard struct{}

func (NoopGuard) Acquire(string) {}
func (NoopGuard) Release(string) {}

// Service runs the self-destructing photo state machine:
// Loading -> Viewing -> {Consumed | ForciblyClosed}, plus Loading -> Failed.
// The viewed event is recorded exactly once per session, on either viewed
// terminal path and never on Failed. This is deterrence, not protection:
// the content can still be captured; the machine only raises the effort and
// reports the attempt.
type Service struct {
	sink     EventSink
	store    MediaStore
	guard    SurfaceGuard
	metrics  *metrics.Set
	logger   *slog.Logger
	tick     time.Duration
	duration time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*runtimeSession
	viewing  map[string]string // {mediaRef, viewerID} -> session holding the single-use pass
}

// runtimeSession pairs the session entity with its countdown run
type runtimeSession struct {
	sess      entity.Session
	engine    *timer.Engine
	remaining time.Duration
	guardHeld bool
	recorded  bool
}

// viewKey identifies one viewer's single-use pass over a photo
func viewKey(mediaRef, viewerID string) string {
	return mediaRef + "\x1f" + viewerID
}

// Option configures the service
type Option func(*Service)

// WithClock overrides the time source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTick overrides the countdown cadence (used by tests)
func WithTick(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithDefaultDuration overrides the view duration used when the sender did
// not pick one. Values outside the allowed bounds are ignored.
func WithDefaultDuration(d time.Duration) Option {
	return func(s *Service) {
		if d >= entity.MinViewDuration && d <= entity.MaxViewDuration {
			s.duration = d
		}
	}
}

// WithGuard sets the viewing surface guard
func WithGuard(g SurfaceGuard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithMetrics sets the metric collectors
func WithMetrics(m *metrics.Set) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a media session service
func New(sink EventSink, store MediaStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		sink:     sink,
		store:    store,
		guard:    NoopGuard{},
		logger:   logger,
		tick:     timer.DefaultInterval,
		duration: entity.DefaultViewDuration,
		now:      time.Now,
		sessions: make(map[string]*runtimeSession),
		viewing:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is the externally visible state of a media session
type Snapshot struct {
	Session   entity.Session `json:"session"`
	Remaining time.Duration  `json:"remaining"`
	// URL is set only while the media may still be shown. Once the session
	// is terminal it is empty and Placeholder is set: the image is never
	// re-shown, including on remount.
	URL         string `json:"url,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

// OpenInput represents input for starting a viewing session
type OpenInput struct {
	MatchID    string
	MediaRef   string
	SenderName string
	ViewerID   string
	Duration   time.Duration
}

// Open starts a viewing session in Loading. The image fetch begins now (the
// returned URL), but the countdown does not run until the load completes.
// A photo the viewer already consumed is refused.
func (s *Service) Open(ctx context.Context, in OpenInput) (*Snapshot, error) {
	duration := in.Duration
	if duration == 0 {
		duration = s.duration
	}
	if duration < entity.MinViewDuration || duration > entity.MaxViewDuration {
		return nil, entity.ErrInvalidDuration
	}

	// Reserve the pass before the sink lookup. Two racing opens for the same
	// {mediaRef, viewer} must not both come away with a viewable session.
	key := viewKey(in.MediaRef, in.ViewerID)
	s.mu.Lock()
	if _, held := s.viewing[key]; held {
		s.mu.Unlock()
		return nil, entity.ErrMediaUnavailable
	}
	s.viewing[key] = ""
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.viewing, key)
		s.mu.Unlock()
	}

	viewed, err := s.sink.WasViewed(ctx, in.MediaRef, in.ViewerID)
	if err != nil {
		release()
		return nil, err
	}
	if viewed {
		release()
		return nil, entity.ErrMediaUnavailable
	}

	url, err := s.store.ViewURL(ctx, in.MediaRef)
	if err != nil {
		release()
		return nil, err
	}

	rs := &runtimeSession{
		sess: entity.Session{
			ID:         uuid.New().String(),
			MatchID:    in.MatchID,
			MediaRef:   in.MediaRef,
			SenderName: in.SenderName,
			ViewerID:   in.ViewerID,
			Duration:   duration,
			State:      entity.StateLoading,
			CreatedAt:  s.now(),
		},
		remaining: duration,
	}

	s.mu.Lock()
	s.sessions[rs.sess.ID] = rs
	s.viewing[key] = rs.sess.ID
	s.mu.Unlock()

	return &Snapshot{Session: rs.sess, Remaining: duration, URL: url}, nil
}

// MarkLoaded moves Loading -> Viewing and starts the countdown. Redelivered
// or late calls are no-ops.
func (s *Service) MarkLoaded(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, entity.ErrMediaSessionNotFound
	}
	if rs.sess.State != entity.StateLoading {
		snap := s.snapshotLocked(rs)
		s.mu.Unlock()
		s.attachURL(ctx, snap)
		return snap, nil
	}
	s.mu.Unlock()

	// Hold the surface before the session is visible as Viewing. A teardown
	// racing this call must never release a guard that is not yet acquired.
	s.guard.Acquire(sessionID)

	s.mu.Lock()
	rs, ok = s.sessions[sessionID]
	if !ok || rs.sess.State != entity.StateLoading {
		// The session moved on while the guard was being acquired; give the
		// hold straight back.
		s.mu.Unlock()
		s.guard.Release(sessionID)
		if !ok {
			return nil, entity.ErrMediaSessionNotFound
		}
		return s.State(ctx, sessionID)
	}

	rs.sess.State = entity.StateViewing
	rs.sess.Deadline = s.now().Add(rs.sess.Duration)
	rs.guardHeld = true
	rs.engine = timer.New(timer.WithInterval(s.tick), timer.WithClock(s.now))
	ticks := rs.engine.Start(rs.sess.Deadline)
	s.mu.Unlock()

	go s.watch(sessionID, ticks)

	return s.State(ctx, sessionID)
}

// watch consumes countdown ticks and closes the session at zero
func (s *Service) watch(sessionID string, ticks <-chan time.Duration) {
	for remaining := range ticks {
		s.mu.Lock()
		rs, ok := s.sessions[sessionID]
		if !ok || rs.sess.State != entity.StateViewing {
			s.mu.Unlock()
			return
		}
		rs.remaining = remaining
		s.mu.Unlock()

		if remaining == 0 {
			// Natural expiry consumes the session.
			s.finish(context.Background(), sessionID, entity.StateConsumed, false)
			return
		}
	}
}

// MarkLoadFailed moves Loading -> Failed. The viewer never saw content, so
// no viewed event is recorded and the media stays unconsumed.
func (s *Service) MarkLoadFailed(ctx context.Context, sessionID string) (*Snapshot, error) {
	snap, err := s.abandonLoading(ctx, sessionID, true)
	return snap, err
}

// abandonLoading ends a session that never displayed. countFailure is false
// when the viewer walked away rather than the load breaking.
func (s *Service) abandonLoading(ctx context.Context, sessionID string, countFailure bool) (*Snapshot, error) {
	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, entity.ErrMediaSessionNotFound
	}
	if rs.sess.State == entity.StateLoading {
		rs.sess.State = entity.StateFailed
		// Nothing was consumed; the viewer keeps the pass for a retry.
		delete(s.viewing, viewKey(rs.sess.MediaRef, rs.sess.ViewerID))
		if countFailure {
			s.metrics.MediaLoadFailed()
		}
	}
	snap := s.snapshotLocked(rs)
	s.mu.Unlock()
	s.attachURL(ctx, snap)
	return snap, nil
}

// Dismiss is the viewer explicitly closing the photo. During Viewing it
// consumes the session; during Loading it abandons it without consumption.
func (s *Service) Dismiss(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, entity.ErrMediaSessionNotFound
	}
	state := rs.sess.State
	s.mu.Unlock()

	switch state {
	case entity.StateViewing:
		return s.finish(ctx, sessionID, entity.StateConsumed, false)
	case entity.StateLoading:
		return s.abandonLoading(ctx, sessionID, false)
	default:
		return s.State(ctx, sessionID)
	}
}

// Signal applies a capture-deterrence trigger. During Viewing the session is
// forcibly closed and still reported as viewed, with the capture suspicion
// flagged to the sender. During Loading nothing was shown yet, so the
// session is abandoned without consumption.
func (s *Service) Signal(ctx context.Context, sessionID string, sig entity.Signal) (*Snapshot, error) {
	if !sig.Valid() {
		return nil, entity.ErrInvalidSignal
	}

	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, entity.ErrMediaSessionNotFound
	}
	state := rs.sess.State
	s.mu.Unlock()

	switch state {
	case entity.StateViewing:
		suspected := sig == entity.SignalScreenshotKey || sig == entity.SignalVisibilityLost
		return s.finish(ctx, sessionID, entity.StateForciblyClosed, suspected)
	case entity.StateLoading:
		return s.abandonLoading(ctx, sessionID, false)
	default:
		return s.State(ctx, sessionID)
	}
}

// State returns the current snapshot of a session
func (s *Service) State(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, entity.ErrMediaSessionNotFound
	}
	snap := s.snapshotLocked(rs)
	s.mu.Unlock()

	s.attachURL(ctx, snap)
	return snap, nil
}

// finish moves a Viewing session to a viewed terminal state. It stops the
// countdown, releases the surface guard, and records the viewed event, each
// exactly once no matter how many terminal paths race here.
func (s *Service) finish(ctx context.Context, sessionID string, terminal entity.State, captureSuspected bool) (*Snapshot, error) {
	s.mu.Lock()
	rs, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, entity.ErrMediaSessionNotFound
	}
	if rs.sess.State.Terminal() {
		snap := s.snapshotLocked(rs)
		s.mu.Unlock()
		return snap, nil
	}

	rs.sess.State = terminal
	rs.remaining = 0
	engine := rs.engine
	releaseGuard := rs.guardHeld
	rs.guardHeld = false
	record := !rs.recorded
	rs.recorded = true
	ev := entity.ViewedEvent{
		SessionID:        rs.sess.ID,
		MatchID:          rs.sess.MatchID,
		MediaRef:         rs.sess.MediaRef,
		ViewerID:         rs.sess.ViewerID,
		CaptureSuspected: captureSuspected,
		OccurredAt:       s.now(),
	}
	s.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	if releaseGuard {
		s.guard.Release(sessionID)
	}

	if record {
		stored := true
		if err := s.sink.RecordViewed(ctx, ev); err != nil {
			// The sink is append-only and deduplicated; a redelivery from a
			// later sweep can still land this event.
			stored = false
			s.logger.Error("recording viewed event failed", "session_id", sessionID, "error", err)
		}
		s.metrics.MediaViewed(string(terminal))

		// The photo is spent for this viewer; best-effort cleanup.
		if err := s.store.Delete(ctx, ev.MediaRef); err != nil {
			s.logger.Warn("deleting consumed media failed", "media_ref", ev.MediaRef, "error", err)
		}

		if stored {
			// The sink now backs the single-use rule; drop the in-process hold.
			s.mu.Lock()
			delete(s.viewing, viewKey(ev.MediaRef, ev.ViewerID))
			s.mu.Unlock()
		}
	}

	return s.State(ctx, sessionID)
}

// PruneStale evicts terminal and abandoned sessions older than the given
// age. Called by the background sweeper so the registry does not grow
// without bound.
func (s *Service) PruneStale(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, rs := range s.sessions {
		if !rs.sess.CreatedAt.Before(cutoff) {
			continue
		}
		if rs.sess.State == entity.StateViewing {
			continue
		}
		if rs.engine != nil {
			rs.engine.Stop()
		}
		if key := viewKey(rs.sess.MediaRef, rs.sess.ViewerID); s.viewing[key] == id {
			delete(s.viewing, key)
		}
		delete(s.sessions, id)
		pruned++
	}

	return pruned
}

// snapshotLocked builds a snapshot without touching storage; the caller
// holds s.mu. attachURL fills in the view URL afterwards.
func (s *Service) snapshotLocked(rs *runtimeSession) *Snapshot {
	snap := &Snapshot{
		Session:   rs.sess,
		Remaining: rs.remaining,
	}
	if rs.sess.State.Terminal() {
		snap.Placeholder = true
	}
	return snap
}

// attachURL resolves the presigned view URL for a session that may still be
// shown. Presigning is a network call and runs outside the registry lock.
func (s *Service) attachURL(ctx context.Context, snap *Snapshot) {
	if snap.Placeholder {
		return
	}

	url, err := s.store.ViewURL(ctx, snap.Session.MediaRef)
	if err != nil {
		s.logger.Warn("resolving media URL failed", "media_ref", snap.Session.MediaRef, "error", err)
		return
	}
	snap.URL = url
}
