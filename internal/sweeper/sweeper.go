// Package sweeper periodically removes expired refresh tokens.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Target deletes expired tokens and reports how many were removed.
type Target interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper calls Target on a fixed interval until its context ends.
type Sweeper struct {
	target   Target
	interval time.Duration
	logger   *slog.Logger
}

// New returns a sweeper. A non-positive interval disables it; Run then
// blocks until ctx is done.
func New(target Target, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Run is blocking and returns nil when ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.InfoContext(ctx, "sweeper disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.target.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.WarnContext(ctx, "sweep failed", "deleted", n, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "sweep finished", "deleted", n)
}
