package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flintapp/flint-core/internal/domain/media/entity"
)

type fakeSink struct {
	mu     sync.Mutex
	events []entity.ViewedEvent
}

func (f *fakeSink) RecordViewed(ctx context.Context, ev entity.ViewedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.SessionID == ev.SessionID {
			return nil
		}
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) WasViewed(ctx context.Context, mediaRef, viewerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.MediaRef == mediaRef && e.ViewerID == viewerID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSink) recorded() []entity.ViewedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.ViewedEvent(nil), f.events...)
}

type fakeStore struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeStore) ViewURL(ctx context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type countingGuard struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (g *countingGuard) Acquire(string) {
	g.mu.Lock()
	g.acquired++
	g.mu.Unlock()
}

func (g *countingGuard) Release(string) {
	g.mu.Lock()
	g.released++
	g.mu.Unlock()
}

func (g *countingGuard) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquired, g.released
}

type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *fakeSink, *fakeStore, *countingGuard, *fakeClock) {
	t.Helper()

	sink := &fakeSink{}
	store := &fakeStore{}
	guard := &countingGuard{}
	clock := &fakeClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	svc := New(sink, store, testLogger(),
		WithClock(clock.Now),
		WithTick(5*time.Millisecond),
		WithGuard(guard),
	)
	return svc, sink, store, guard, clock
}

func open(t *testing.T, svc *Service) *Snapshot {
	t.Helper()
	snap, err := svc.Open(context.Background(), OpenInput{
		MatchID:    "m1",
		MediaRef:   "photo-1",
		SenderName: "Alice",
		ViewerID:   "bob",
	})
	require.NoError(t, err)
	return snap
}

func waitForState(t *testing.T, svc *Service, sessionID string, want entity.State) *Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap, err := svc.State(context.Background(), sessionID)
		require.NoError(t, err)
		if snap.Session.State == want {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("session never reached %s (stuck at %s)", want, snap.Session.State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOpenStartsLoading(t *testing.T) {
	svc, _, _, guard, _ := newTestService(t)

	snap := open(t, svc)
	assert.Equal(t, entity.StateLoading, snap.Session.State)
	assert.Equal(t, entity.DefaultViewDuration, snap.Session.Duration)
	assert.Equal(t, entity.DefaultViewDuration, snap.Remaining)
	assert.Equal(t, "https://cdn.test/photo-1", snap.URL)
	assert.False(t, snap.Placeholder)

	acquired, _ := guard.counts()
	assert.Equal(t, 0, acquired, "the surface is not locked while loading")
}

func TestOpenDurationBounds(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	for _, d := range []time.Duration{time.Second, entity.MinViewDuration - time.Millisecond, entity.MaxViewDuration + time.Second} {
		_, err := svc.Open(context.Background(), OpenInput{MediaRef: "p", ViewerID: "bob", Duration: d})
		assert.ErrorIs(t, err, entity.ErrInvalidDuration, "duration=%v", d)
	}

	for i, d := range []time.Duration{entity.MinViewDuration, 30 * time.Second, entity.MaxViewDuration} {
		snap, err := svc.Open(context.Background(), OpenInput{MediaRef: fmt.Sprintf("p-%d", i), ViewerID: "bob", Duration: d})
		require.NoError(t, err, "duration=%v", d)
		assert.Equal(t, d, snap.Session.Duration)
	}
}

func TestMarkLoadedStartsCountdown(t *testing.T) {
	svc, _, _, guard, _ := newTestService(t)

	snap := open(t, svc)
	snap, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateViewing, snap.Session.State)
	assert.False(t, snap.Session.Deadline.IsZero())

	acquired, released := guard.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 0, released)
}

func TestMarkLoadedIsIdempotent(t *testing.T) {
	svc, _, _, guard, _ := newTestService(t)

	snap := open(t, svc)
	_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	again, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateViewing, again.Session.State)

	acquired, _ := guard.counts()
	assert.Equal(t, 1, acquired, "a redelivered loaded signal must not re-acquire")
}

func TestNaturalExpiryConsumes(t *testing.T) {
	svc, sink, store, guard, clock := newTestService(t)

	snap := open(t, svc)
	_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	clock.Advance(entity.DefaultViewDuration + time.Second)

	final := waitForState(t, svc, snap.Session.ID, entity.StateConsumed)
	assert.Equal(t, time.Duration(0), final.Remaining)
	assert.True(t, final.Placeholder)
	assert.Empty(t, final.URL)

	events := sink.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, snap.Session.ID, events[0].SessionID)
	assert.False(t, events[0].CaptureSuspected)

	store.mu.Lock()
	deleted := append([]string(nil), store.deleted...)
	store.mu.Unlock()
	assert.Equal(t, []string{"photo-1"}, deleted)

	acquired, released := guard.counts()
	assert.Equal(t, acquired, released, "guard released exactly as often as acquired")
}

func TestDismissWhileViewingConsumes(t *testing.T) {
	svc, sink, _, guard, _ := newTestService(t)

	snap := open(t, svc)
	_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	final, err := svc.Dismiss(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateConsumed, final.Session.State)
	assert.True(t, final.Placeholder)

	events := sink.recorded()
	require.Len(t, events, 1)
	assert.False(t, events[0].CaptureSuspected, "an explicit dismiss is not a capture")

	_, released := guard.counts()
	assert.Equal(t, 1, released)
}

func TestSignalWhileViewingForciblyCloses(t *testing.T) {
	tests := []struct {
		sig       entity.Signal
		suspected bool
	}{
		{entity.SignalScreenshotKey, true},
		{entity.SignalVisibilityLost, true},
		{entity.SignalForcedClose, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.sig), func(t *testing.T) {
			svc, sink, _, _, _ := newTestService(t)

			snap := open(t, svc)
			_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
			require.NoError(t, err)

			final, err := svc.Signal(context.Background(), snap.Session.ID, tt.sig)
			require.NoError(t, err)
			assert.Equal(t, entity.StateForciblyClosed, final.Session.State)
			assert.True(t, final.Placeholder)

			events := sink.recorded()
			require.Len(t, events, 1, "a forced close still counts as viewed")
			assert.Equal(t, tt.suspected, events[0].CaptureSuspected)
		})
	}
}

func TestSignalWhileLoadingAbandons(t *testing.T) {
	svc, sink, _, guard, _ := newTestService(t)

	snap := open(t, svc)
	final, err := svc.Signal(context.Background(), snap.Session.ID, entity.SignalVisibilityLost)
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, final.Session.State, "nothing was shown, so nothing was viewed")
	assert.Empty(t, sink.recorded())

	_, released := guard.counts()
	assert.Equal(t, 0, released)
}

func TestDismissWhileLoadingAbandons(t *testing.T) {
	svc, sink, _, _, _ := newTestService(t)

	snap := open(t, svc)
	final, err := svc.Dismiss(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, final.Session.State)
	assert.Empty(t, sink.recorded())
}

func TestMarkLoadFailed(t *testing.T) {
	svc, sink, _, _, _ := newTestService(t)

	snap := open(t, svc)
	final, err := svc.MarkLoadFailed(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, final.Session.State)
	assert.Empty(t, sink.recorded())

	// The media stays viewable for a retry.
	retry, err := svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, entity.StateLoading, retry.Session.State)
}

func TestViewedEventRecordedExactlyOnce(t *testing.T) {
	svc, sink, _, guard, _ := newTestService(t)

	snap := open(t, svc)
	_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	// Terminal paths racing one another settle on the first one in.
	_, err = svc.Dismiss(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	final, err := svc.Signal(context.Background(), snap.Session.ID, entity.SignalScreenshotKey)
	require.NoError(t, err)
	assert.Equal(t, entity.StateConsumed, final.Session.State, "the first terminal transition wins")

	events := sink.recorded()
	require.Len(t, events, 1)
	assert.False(t, events[0].CaptureSuspected)

	_, released := guard.counts()
	assert.Equal(t, 1, released, "guard released exactly once across racing exits")
}

func TestConsumedMediaCannotBeReopened(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	snap := open(t, svc)
	_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	_, err = svc.Dismiss(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	// A remount is a fresh session over the same media: refused.
	_, err = svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
	assert.ErrorIs(t, err, entity.ErrMediaUnavailable)
}

func TestTerminalSnapshotHidesContent(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	snap := open(t, svc)
	_, err := svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	_, err = svc.Dismiss(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	got, err := svc.State(context.Background(), snap.Session.ID)
	require.NoError(t, err)
	assert.True(t, got.Placeholder)
	assert.Empty(t, got.URL, "a terminal session never exposes the content URL again")
}

func TestInvalidSignal(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	snap := open(t, svc)
	_, err := svc.Signal(context.Background(), snap.Session.ID, entity.Signal("shake"))
	assert.ErrorIs(t, err, entity.ErrInvalidSignal)
}

func TestUnknownSession(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.State(context.Background(), "nope")
	assert.ErrorIs(t, err, entity.ErrMediaSessionNotFound)
	_, err = svc.MarkLoaded(context.Background(), "nope")
	assert.ErrorIs(t, err, entity.ErrMediaSessionNotFound)
	_, err = svc.Dismiss(context.Background(), "nope")
	assert.ErrorIs(t, err, entity.ErrMediaSessionNotFound)
}

// parkingGuard stalls inside Acquire until park is closed, recording the
// order in which the hold is taken and returned.
type parkingGuard struct {
	mu      sync.Mutex
	calls   []string
	entered chan struct{}
	park    chan struct{}
}

func newParkingGuard() *parkingGuard {
	return &parkingGuard{
		entered: make(chan struct{}, 1),
		park:    make(chan struct{}),
	}
}

func (g *parkingGuard) Acquire(string) {
	g.entered <- struct{}{}
	<-g.park
	g.mu.Lock()
	g.calls = append(g.calls, "acquire")
	g.mu.Unlock()
}

func (g *parkingGuard) Release(string) {
	g.mu.Lock()
	g.calls = append(g.calls, "release")
	g.mu.Unlock()
}

func (g *parkingGuard) order() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func TestTeardownDuringGuardAcquisition(t *testing.T) {
	sink := &fakeSink{}
	guard := newParkingGuard()
	svc := New(sink, &fakeStore{}, testLogger(),
		WithTick(5*time.Millisecond),
		WithGuard(guard),
	)

	snap, err := svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
	require.NoError(t, err)

	loaded := make(chan struct{})
	go func() {
		defer close(loaded)
		_, _ = svc.MarkLoaded(context.Background(), snap.Session.ID)
	}()
	<-guard.entered

	// The viewer loses visibility while the surface hold is still settling.
	final, err := svc.Signal(context.Background(), snap.Session.ID, entity.SignalVisibilityLost)
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, final.Session.State)

	close(guard.park)
	<-loaded

	assert.Equal(t, []string{"acquire", "release"}, guard.order(),
		"the hold is returned only after it completed")
	assert.Empty(t, sink.recorded())
}

// gatedSink stalls WasViewed until release is closed
type gatedSink struct {
	fakeSink
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSink) WasViewed(ctx context.Context, mediaRef, viewerID string) (bool, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeSink.WasViewed(ctx, mediaRef, viewerID)
}

func TestConcurrentOpensShareOneView(t *testing.T) {
	sink := &gatedSink{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	svc := New(sink, &fakeStore{}, testLogger(), WithTick(5*time.Millisecond))

	type result struct {
		snap *Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		snap, err := svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
		first <- result{snap, err}
	}()
	<-sink.entered

	// A second open for the same photo and viewer while the first is still
	// settling must not hand out another viewable session.
	_, err := svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
	assert.ErrorIs(t, err, entity.ErrMediaUnavailable)

	close(sink.release)
	res := <-first
	require.NoError(t, res.err)

	_, err = svc.MarkLoaded(context.Background(), res.snap.Session.ID)
	require.NoError(t, err)
	_, err = svc.Dismiss(context.Background(), res.snap.Session.ID)
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
	assert.ErrorIs(t, err, entity.ErrMediaUnavailable)
	assert.Len(t, sink.recorded(), 1, "one view, no matter how the opens interleave")
}

// gatedStore stalls ViewURL on an armed gate
type gatedStore struct {
	fakeStore
	gateMu  sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedStore) block() chan struct{} {
	gate := make(chan struct{})
	g.gateMu.Lock()
	g.gate = gate
	g.gateMu.Unlock()
	return gate
}

func (g *gatedStore) ViewURL(ctx context.Context, key string) (string, error) {
	g.gateMu.Lock()
	gate := g.gate
	g.gateMu.Unlock()
	if gate != nil {
		g.entered <- struct{}{}
		<-gate
	}
	return g.fakeStore.ViewURL(ctx, key)
}

func TestSlowURLResolutionDoesNotBlockTeardown(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}, 1)}
	svc := New(&fakeSink{}, store, testLogger(), WithTick(5*time.Millisecond))

	snap, err := svc.Open(context.Background(), OpenInput{MediaRef: "photo-1", ViewerID: "bob"})
	require.NoError(t, err)
	_, err = svc.MarkLoaded(context.Background(), snap.Session.ID)
	require.NoError(t, err)

	gate := store.block()
	stateDone := make(chan struct{})
	go func() {
		defer close(stateDone)
		_, _ = svc.State(context.Background(), snap.Session.ID)
	}()
	<-store.entered

	dismissed := make(chan struct{})
	go func() {
		defer close(dismissed)
		_, err := svc.Dismiss(context.Background(), snap.Session.ID)
		assert.NoError(t, err)
	}()

	select {
	case <-dismissed:
	case <-time.After(2 * time.Second):
		t.Fatal("dismiss stalled behind a slow URL resolution")
	}

	close(gate)
	<-stateDone
}

func TestPruneStale(t *testing.T) {
	svc, _, _, _, clock := newTestService(t)

	finished := open(t, svc)
	_, err := svc.Dismiss(context.Background(), finished.Session.ID)
	require.NoError(t, err)

	active, err := svc.Open(context.Background(), OpenInput{
		MediaRef: "photo-2",
		ViewerID: "bob",
		Duration: entity.MaxViewDuration,
	})
	require.NoError(t, err)
	_, err = svc.MarkLoaded(context.Background(), active.Session.ID)
	require.NoError(t, err)

	// Both sessions are now past the cutoff, but only the terminal one goes.
	clock.Advance(40 * time.Second)

	pruned := svc.PruneStale(30 * time.Second)
	assert.Equal(t, 1, pruned, "a session still viewing is never evicted")

	_, err = svc.State(context.Background(), finished.Session.ID)
	assert.ErrorIs(t, err, entity.ErrMediaSessionNotFound)
	_, err = svc.State(context.Background(), active.Session.ID)
	assert.NoError(t, err)
}
