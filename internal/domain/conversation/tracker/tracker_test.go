package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
	"github.com/flintapp/flint-core/internal/timer"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes []StateChange
	expired chan struct{}
	once    sync.Once
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{expired: make(chan struct{})}
}

func (r *changeRecorder) listen(change StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, change)
	r.mu.Unlock()

	if change.Timer == entity.TimerExpired {
		r.once.Do(func() { close(r.expired) })
	}
}

func (r *changeRecorder) snapshot() []StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StateChange(nil), r.changes...)
}

func (r *changeRecorder) waitExpired(t *testing.T) {
	t.Helper()
	select {
	case <-r.expired:
	case <-time.After(2 * time.Second):
		t.Fatal("never reached the expired state")
	}
}

func TestTrackerReachesExpired(t *testing.T) {
	rec := newChangeRecorder()
	tr := New(timer.New(timer.WithInterval(5*time.Millisecond)), false, false, rec.listen)

	tr.Track(time.Now().Add(30 * time.Millisecond))
	rec.waitExpired(t)
	tr.Stop()

	changes := rec.snapshot()
	require.NotEmpty(t, changes)

	first := changes[0]
	assert.Equal(t, entity.TimerFinal, first.Timer, "a 30ms window is already in the final stretch")
	assert.Equal(t, entity.NudgeCritical, first.Nudge)
	assert.True(t, first.Display.Show)

	last := changes[len(changes)-1]
	assert.Equal(t, entity.TimerExpired, last.Timer)
	assert.Equal(t, entity.NudgeExpired, last.Nudge)
	assert.Equal(t, time.Duration(0), last.Remaining)
}

func TestTrackerNotifiesOnlyOnChange(t *testing.T) {
	rec := newChangeRecorder()
	tr := New(timer.New(timer.WithInterval(2*time.Millisecond)), false, false, rec.listen)

	tr.Track(time.Now().Add(40 * time.Millisecond))
	rec.waitExpired(t)
	tr.Stop()

	seen := map[entity.TimerState]int{}
	for _, c := range rec.snapshot() {
		seen[c.Timer]++
	}
	for state, count := range seen {
		assert.Equal(t, 1, count, "state %s delivered more than once", state)
	}
}

func TestTrackerPrimePairIsUnlimited(t *testing.T) {
	rec := newChangeRecorder()
	tr := New(timer.New(timer.WithInterval(5*time.Millisecond)), true, true, rec.listen)

	tr.Track(time.Now().Add(10 * time.Millisecond))

	// The unlimited notification is synchronous; nothing ticks afterwards.
	time.Sleep(40 * time.Millisecond)
	tr.Stop()

	changes := rec.snapshot()
	require.Len(t, changes, 1)
	assert.Equal(t, entity.TimerUnlimited, changes[0].Timer)
	assert.Equal(t, entity.NudgeNone, changes[0].Nudge)
	assert.False(t, changes[0].Display.Show)
}

func TestTrackerPrimeViewerSeesNoNudge(t *testing.T) {
	rec := newChangeRecorder()
	tr := New(timer.New(timer.WithInterval(5*time.Millisecond)), true, false, rec.listen)

	tr.Track(time.Now().Add(25 * time.Millisecond))
	rec.waitExpired(t)
	tr.Stop()

	for _, c := range rec.snapshot() {
		assert.Equal(t, entity.NudgeNone, c.Nudge)
		assert.False(t, c.Display.Show)
	}
}

func TestTrackerRetrackAfterReopen(t *testing.T) {
	rec := newChangeRecorder()
	tr := New(timer.New(timer.WithInterval(5*time.Millisecond)), false, false, rec.listen)

	tr.Track(time.Now().Add(20 * time.Millisecond))
	rec.waitExpired(t)

	before := len(rec.snapshot())

	// A reopen restarts the countdown toward the new window end.
	tr.Track(time.Now().Add(30 * time.Millisecond))

	deadline := time.After(2 * time.Second)
	for {
		changes := rec.snapshot()
		if len(changes) > before && changes[len(changes)-1].Timer == entity.TimerExpired {
			break
		}
		select {
		case <-deadline:
			t.Fatal("restarted countdown never expired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	tr.Stop()

	changes := rec.snapshot()
	resumed := changes[before]
	assert.Equal(t, entity.TimerFinal, resumed.Timer, "restart must classify afresh, not carry the expired state")
}

func TestTrackerStopSilencesListener(t *testing.T) {
	rec := newChangeRecorder()
	tr := New(timer.New(timer.WithInterval(5*time.Millisecond)), false, false, rec.listen)

	tr.Track(time.Now().Add(time.Hour))
	time.Sleep(15 * time.Millisecond)
	tr.Stop()

	count := len(rec.snapshot())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, len(rec.snapshot()), "no callbacks after Stop returns")
}
