package trigger

import (
	"context"
	"time"

	"ridecoord/internal/logger"
)

// PendingExpirer gives up the driver search on overdue pending rides.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, now time.Time, limit int) (int, error)
}

// Sweeper periodically expires pending rides whose search deadline passed.
type Sweeper struct {
	expirer   PendingExpirer
	interval  time.Duration
	batchSize int
	now       func() time.Time
	log       *logger.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(expirer PendingExpirer, interval time.Duration, batchSize int, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		expirer:   expirer,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		log:       log,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error(ctx, "pending ride sweep failed", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce expires one batch of overdue rides.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.expirer.ExpirePending(ctx, s.now().UTC(), s.batchSize)
	if n > 0 {
		s.log.Info(s.log.WithField(ctx, "count", n), "expired pending rides")
	}
	return n, err
}
