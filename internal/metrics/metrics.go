// Package metrics exposes Prometheus counters for the conversation core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the metric collectors for the conversation and media domains
type Set struct {
	ReopensTotal         prometheus.Counter
	ReopenConflictsTotal prometheus.Counter
	SessionsExpiredTotal prometheus.Counter
	MediaViewedTotal     *prometheus.CounterVec
	MediaLoadFailures    prometheus.Counter
}

// New creates the metric set and registers it with the given registerer
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		ReopensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flint_conversation_reopens_total",
			Help: "Successful conversation window extensions.",
		}),
		ReopenConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flint_conversation_reopen_conflicts_total",
			Help: "Reopen attempts that lost a concurrent-extension race.",
		}),
		SessionsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flint_conversation_sessions_expired_total",
			Help: "Conversation windows observed lapsing by the expiry sweeper.",
		}),
		MediaViewedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flint_media_viewed_total",
			Help: "Ephemeral media sessions reaching a viewed terminal state.",
		}, []string{"outcome"}),
		MediaLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flint_media_load_failures_total",
			Help: "Ephemeral media sessions that failed to load.",
		}),
	}

	reg.MustRegister(
		s.ReopensTotal,
		s.ReopenConflictsTotal,
		s.SessionsExpiredTotal,
		s.MediaViewedTotal,
		s.MediaLoadFailures,
	)
	return s
}

// MediaViewed records a viewed event by terminal outcome
func (s *Set) MediaViewed(outcome string) {
	if s == nil {
		return
	}
	s.MediaViewedTotal.WithLabelValues(outcome).Inc()
}

// Reopened records a successful window extension
func (s *Set) Reopened() {
	if s == nil {
		return
	}
	s.ReopensTotal.Inc()
}

// ReopenConflict records a lost extension race
func (s *Set) ReopenConflict() {
	if s == nil {
		return
	}
	s.ReopenConflictsTotal.Inc()
}

// SessionExpired records a lapsed window seen by the sweeper
func (s *Set) SessionExpired() {
	if s == nil {
		return
	}
	s.SessionsExpiredTotal.Inc()
}

// MediaLoadFailed records a media session that never displayed
func (s *Set) MediaLoadFailed() {
	if s == nil {
		return
	}
	s.MediaLoadFailures.Inc()
}
