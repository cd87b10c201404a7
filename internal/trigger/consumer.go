package trigger

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
	"ridecoord/internal/redis"
	"ridecoord/internal/service"
)

// ChangeSource is a consumer-group view of the change stream.
type ChangeSource interface {
	EnsureGroup(ctx context.Context, group string) error
	ReadPending(ctx context.Context, group, consumer string, count int64) ([]redis.StreamMessage, error)
	ReadNew(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]redis.StreamMessage, error)
	ClaimIdle(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, group string, ids ...string) error
}

// ChangeHandler reacts to one ride change. It reports, never fails.
type ChangeHandler interface {
	Handle(ctx context.Context, change *domain.RideChange) service.Result
}

// ConsumerOptions configures a Consumer. Entries another consumer left
// unacknowledged for ClaimMinIdle are taken over; Run checks for them
// every ClaimMinIdle.
type ConsumerOptions struct {
	Group        string
	Consumer     string
	BatchSize    int64
	Block        time.Duration
	ClaimMinIdle time.Duration
}

const readRetryDelay = time.Second

// Consumer delivers stream entries to the handler and acknowledges each
// one after the handler returns, whatever the outcome.
type Consumer struct {
	source  ChangeSource
	handler ChangeHandler
	opts    ConsumerOptions
	nrApp   *newrelic.Application
	log     *logger.Logger
}

// NewConsumer creates a new Consumer. nrApp may be nil.
func NewConsumer(source ChangeSource, handler ChangeHandler, opts ConsumerOptions, nrApp *newrelic.Application, log *logger.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ClaimMinIdle <= 0 {
		opts.ClaimMinIdle = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		source:  source,
		handler: handler,
		opts:    opts,
		nrApp:   nrApp,
		log:     log,
	}
}

// Run consumes until ctx is cancelled. Entries left pending by a previous
// run of this consumer are handled first, then idle entries of other
// consumers, which are checked again every ClaimMinIdle.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.source.EnsureGroup(ctx, c.opts.Group); err != nil {
		return err
	}
	if _, err := c.DrainPending(ctx); err != nil && ctx.Err() == nil {
		c.log.Error(ctx, "failed to drain pending changes", err)
	}

	var lastClaim time.Time
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= c.opts.ClaimMinIdle {
			lastClaim = time.Now()
			if _, err := c.ClaimIdle(ctx); err != nil && ctx.Err() == nil {
				c.log.Error(ctx, "failed to claim idle changes", err)
			}
		}
		if _, err := c.ConsumeNew(ctx); err != nil && ctx.Err() == nil {
			c.log.Error(ctx, "failed to read change stream", err)
			select {
			case <-ctx.Done():
			case <-time.After(readRetryDelay):
			}
		}
	}
	return nil
}

// DrainPending handles entries delivered to this consumer but never
// acknowledged.
func (c *Consumer) DrainPending(ctx context.Context) (int, error) {
	total := 0
	for {
		msgs, err := c.source.ReadPending(ctx, c.opts.Group, c.opts.Consumer, c.opts.BatchSize)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}
		n, err := c.process(ctx, msgs)
		total += n
		if err != nil {
			return total, err
		}
	}
}

// ClaimIdle takes over and handles entries that sat unacknowledged on any
// consumer for at least ClaimMinIdle, for example one that died.
func (c *Consumer) ClaimIdle(ctx context.Context) (int, error) {
	total := 0
	for {
		msgs, err := c.source.ClaimIdle(ctx, c.opts.Group, c.opts.Consumer, c.opts.ClaimMinIdle, c.opts.BatchSize)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}
		if total == 0 {
			c.log.Warn(ctx, "claiming idle ride changes")
		}
		n, err := c.process(ctx, msgs)
		total += n
		if err != nil {
			return total, err
		}
	}
}

// ConsumeNew blocks for one batch of new entries and handles it.
func (c *Consumer) ConsumeNew(ctx context.Context) (int, error) {
	msgs, err := c.source.ReadNew(ctx, c.opts.Group, c.opts.Consumer, c.opts.BatchSize, c.opts.Block)
	if err != nil {
		return 0, err
	}
	return c.process(ctx, msgs)
}

func (c *Consumer) process(ctx context.Context, msgs []redis.StreamMessage) (int, error) {
	for i, msg := range msgs {
		c.handle(ctx, msg)
		if err := c.source.Ack(ctx, c.opts.Group, msg.ID); err != nil {
			return i, err
		}
	}
	return len(msgs), nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.StreamMessage) {
	ctx = c.log.WithFields(ctx, map[string]any{
		"stream_id": msg.ID,
		"ride_id":   msg.RideID,
	})

	if msg.Err != nil {
		c.log.Error(ctx, "dropping undecodable ride change", msg.Err)
		return
	}

	txn := c.nrApp.StartTransaction("ride-change")
	defer txn.End()
	txn.AddAttribute("rideId", msg.RideID)

	result := c.handler.Handle(newrelic.NewContext(ctx, txn), msg.Change)

	txn.AddAttribute("outcome", string(result.Outcome))
	if result.Send.Err != nil {
		txn.NoticeError(result.Send.Err)
	}
	c.log.Debug(c.log.WithField(ctx, "outcome", string(result.Outcome)), "ride change handled")
}
