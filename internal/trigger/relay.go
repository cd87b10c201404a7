package trigger

import (
	"context"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
	"ridecoord/internal/repository"
)

// ChangePublisher appends a ride change to the change stream.
type ChangePublisher interface {
	Publish(ctx context.Context, change *domain.RideChange) (string, error)
}

// Relay moves ride changes from the outbox table to the change stream. A
// crash between publishing and marking republishes the batch, so the
// stream sees every change at least once.
type Relay struct {
	outbox    repository.ChangeOutbox
	publisher ChangePublisher
	batchSize int
	interval  time.Duration
	log       *logger.Logger
}

// NewRelay creates a new Relay.
func NewRelay(outbox repository.ChangeOutbox, publisher ChangePublisher, batchSize int, interval time.Duration, log *logger.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		log:       log,
	}
}

// Run relays until ctx is cancelled. A full batch is followed immediately
// by the next one.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			r.log.Error(ctx, "outbox relay failed", err)
		}
		if err == nil && n == r.batchSize {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch in change order. It stops at the first
// publish failure so later changes of a ride never overtake earlier ones,
// and marks only what was published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	changes, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(changes))
	var publishErr error
	for _, change := range changes {
		if _, err := r.publisher.Publish(ctx, change); err != nil {
			publishErr = err
			break
		}
		published = append(published, change.ID)
	}

	if err := r.outbox.MarkPublished(ctx, published); err != nil {
		return 0, err
	}
	if len(published) > 0 {
		r.log.Debug(r.log.WithField(ctx, "count", len(published)), "ride changes relayed")
	}
	return len(published), publishErr
}
