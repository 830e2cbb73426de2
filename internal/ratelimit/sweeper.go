package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweepable is a store that can drop expired records.
type Sweepable interface {
	Sweep(cutoff time.Time) int
}

// Sweeper periodically removes records whose window ended more than retention ago.
type Sweeper struct {
	store     Sweepable
	clock     Clock
	interval  time.Duration
	retention time.Duration
	log       *zap.Logger
}

// NewSweeper creates a sweeper. A nil logger is replaced with a no-op logger.
func NewSweeper(store Sweepable, interval, retention time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		store:     store,
		clock:     RealClock(),
		interval:  interval,
		retention: retention,
		log:       log,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() int {
	n := s.store.Sweep(s.clock.Now().Add(-s.retention))
	if n > 0 {
		s.log.Debug("rate_limit_records_swept",
			zap.Int("removed", n),
			zap.Duration("retention", s.retention),
		)
	}
	return n
}
