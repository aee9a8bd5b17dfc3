package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpirySweeper finds conversation windows that just lapsed
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, lookback time.Duration, limit int) (int, error)
}

// SessionPruner evicts finished media sessions from the in-memory registry
type SessionPruner interface {
	PruneStale(olderThan time.Duration) int
}

// Sweeper periodically surfaces expired conversation windows and prunes
// stale media sessions.
type Sweeper struct {
	expiry   ExpirySweeper
	pruner   SessionPruner
	interval time.Duration
	lookback time.Duration
	batch    int
	ttl      time.Duration
	logger   *slog.Logger

	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// SweeperConfig holds sweeper configuration
type SweeperConfig struct {
	Interval   time.Duration
	Lookback   time.Duration
	BatchSize  int
	SessionTTL time.Duration
}

// NewSweeper creates a new background sweeper
func NewSweeper(expiry ExpirySweeper, pruner SessionPruner, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = 5 * time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}

	return &Sweeper{
		expiry:   expiry,
		pruner:   pruner,
		interval: cfg.Interval,
		lookback: cfg.Lookback,
		batch:    cfg.BatchSize,
		ttl:      cfg.SessionTTL,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweeper
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("expiry sweeper started", "interval", s.interval, "lookback", s.lookback)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("expiry sweeper stopped")
}

// run is the main sweeper loop
func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.process(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// process runs one sweep pass
func (s *Sweeper) process(ctx context.Context) {
	seen, err := s.expiry.SweepExpired(ctx, s.lookback, s.batch)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	} else if seen > 0 {
		s.logger.Info("expired conversation windows", "count", seen)
	}

	if s.pruner != nil {
		if pruned := s.pruner.PruneStale(s.ttl); pruned > 0 {
			s.logger.Debug("pruned media sessions", "count", pruned)
		}
	}
}
