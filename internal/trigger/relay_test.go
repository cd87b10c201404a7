package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecoord/internal/domain"
)

type fakeOutbox struct {
	mu      sync.Mutex
	changes []*domain.RideChange
	marked  map[int64]bool

	markCalls int
}

func newFakeOutbox(ids ...int64) *fakeOutbox {
	o := &fakeOutbox{marked: make(map[int64]bool)}
	for _, id := range ids {
		o.changes = append(o.changes, &domain.RideChange{
			ID:     id,
			RideID: "ride-1",
			After:  &domain.Ride{ID: "ride-1", Status: domain.RideStatusAccepted},
		})
	}
	return o
}

func (o *fakeOutbox) FetchUnpublished(ctx context.Context, limit int) ([]*domain.RideChange, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*domain.RideChange
	for _, c := range o.changes {
		if len(out) == limit {
			break
		}
		if !o.marked[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkPublished(ctx context.Context, ids []int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.markCalls++
	for _, id := range ids {
		o.marked[id] = true
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []int64
	failOn    int64
}

func (p *fakePublisher) Publish(ctx context.Context, change *domain.RideChange) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if change.ID == p.failOn {
		return "", errors.New("stream unavailable")
	}
	p.published = append(p.published, change.ID)
	return "", nil
}

func TestRelay_PublishesInOrderAndMarks(t *testing.T) {
	outbox := newFakeOutbox(1, 2, 3)
	publisher := &fakePublisher{}
	relay := NewRelay(outbox, publisher, 10, 0, nil)

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 2, 3}, publisher.published)
	assert.True(t, outbox.marked[1] && outbox.marked[2] && outbox.marked[3])
}

func TestRelay_StopsAtFirstFailure(t *testing.T) {
	outbox := newFakeOutbox(1, 2, 3)
	publisher := &fakePublisher{failOn: 2}
	relay := NewRelay(outbox, publisher, 10, 0, nil)

	n, err := relay.RelayOnce(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, publisher.published)
	assert.True(t, outbox.marked[1])
	assert.False(t, outbox.marked[2])
	assert.False(t, outbox.marked[3], "later changes must not overtake a failed one")

	// Once the stream recovers the rest follows in order.
	publisher.failOn = 0
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2, 3}, publisher.published)
}

func TestRelay_EmptyOutbox(t *testing.T) {
	outbox := newFakeOutbox()
	relay := NewRelay(outbox, &fakePublisher{}, 10, 0, nil)

	n, err := relay.RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, outbox.markCalls)
}

func TestRelay_BatchSizeLimitsOnePass(t *testing.T) {
	outbox := newFakeOutbox(1, 2, 3)
	publisher := &fakePublisher{}
	relay := NewRelay(outbox, publisher, 2, 0, nil)

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, publisher.published)
}
