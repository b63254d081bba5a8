// Package sweeper periodically purges expired authorization codes and refresh
// tokens from stores that have no native expiry.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredRemover deletes records expired at now and reports how many went away.
type ExpiredRemover interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs ExpiredRemover on a fixed interval.
type Sweeper struct {
	log      *slog.Logger
	store    ExpiredRemover
	interval time.Duration
	now      func() time.Time
}

const defaultInterval = time.Minute

// New creates a sweeper. A non-positive interval selects one minute.
func New(log *slog.Logger, store ExpiredRemover, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		log:      log,
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	const op = "sweeper.Run"
	log := s.log.With(slog.String("op", op), slog.Duration("interval", s.interval))
	log.Info("starting expired credentials sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep purges once. Failures are logged and retried on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	const op = "sweeper.Sweep"

	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("failed to delete expired credentials", slog.String("op", op), slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		s.log.Debug("expired credentials deleted", slog.String("op", op), slog.Int64("count", n))
	}
}
