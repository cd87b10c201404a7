package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ridecoord/internal/domain"
)

const (
	changeField = "change"
	rideIDField = "ride_id"

	// DefaultStreamMaxLen caps the change stream; consumers ack well before
	// entries are trimmed.
	DefaultStreamMaxLen = 100000
)

// StreamMessage is one delivered change stream entry. Err is set when the
// entry could not be decoded; the caller still owns acknowledging it.
type StreamMessage struct {
	ID     string
	RideID string
	Change *domain.RideChange
	Err    error
}

// ChangeStream carries ride changes over a Redis Stream consumed through a
// consumer group, which gives at-least-once delivery: entries stay pending
// until acknowledged and are redelivered to the same consumer on restart,
// or claimed by another consumer once they sit idle.
type ChangeStream struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewChangeStream creates a ChangeStream on the given stream key.
func NewChangeStream(client *redis.Client, key string) *ChangeStream {
	return &ChangeStream{client: client, key: key, maxLen: DefaultStreamMaxLen}
}

// Key returns the stream key.
func (s *ChangeStream) Key() string {
	return s.key
}

// Publish appends a change to the stream and returns the entry ID.
func (s *ChangeStream) Publish(ctx context.Context, change *domain.RideChange) (string, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return "", fmt.Errorf("encode change %d: %w", change.ID, err)
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			changeField: string(data),
			rideIDField: change.RideID,
			"change_id": strconv.FormatInt(change.ID, 10),
		},
	}).Result()
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (s *ChangeStream) EnsureGroup(ctx context.Context, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, s.key, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ReadPending returns entries already delivered to consumer but not yet
// acknowledged, for example after a crash.
func (s *ChangeStream) ReadPending(ctx context.Context, group, consumer string, count int64) ([]StreamMessage, error) {
	return s.read(ctx, group, consumer, "0", count, -1)
}

// ReadNew blocks up to block for entries never delivered to the group.
func (s *ChangeStream) ReadNew(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	return s.read(ctx, group, consumer, ">", count, block)
}

// ClaimIdle moves up to count entries that have been pending longer than
// minIdle, on any consumer of the group, to consumer and returns them.
func (s *ChangeStream) ClaimIdle(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]StreamMessage, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(msgs))
	for _, msg := range msgs {
		messages = append(messages, decodeMessage(msg))
	}
	return messages, nil
}

// Ack acknowledges processed entries.
func (s *ChangeStream) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.client.XAck(ctx, s.key, group, ids...).Err()
}

func (s *ChangeStream) read(ctx context.Context, group, consumer, start string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.key, start},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, decodeMessage(msg))
		}
	}
	return messages, nil
}

func decodeMessage(msg redis.XMessage) StreamMessage {
	out := StreamMessage{ID: msg.ID}
	if rideID, ok := msg.Values[rideIDField].(string); ok {
		out.RideID = rideID
	}

	raw, ok := msg.Values[changeField].(string)
	if !ok {
		out.Err = fmt.Errorf("stream entry %s: missing %q field", msg.ID, changeField)
		return out
	}

	var change domain.RideChange
	if err := json.Unmarshal([]byte(raw), &change); err != nil {
		out.Err = fmt.Errorf("stream entry %s: %w", msg.ID, err)
		return out
	}
	out.Change = &change
	return out
}
