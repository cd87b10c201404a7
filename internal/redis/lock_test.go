package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockStore_AcquireIsExclusive(t *testing.T) {
	client, _ := newTestClient(t)
	locks := NewLockStore(client)
	ctx := context.Background()

	token, ok, err := locks.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = locks.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")

	_, ok, err = locks.AcquireRiderLock(ctx, "rider-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per rider")
}

func TestLockStore_ReleaseRequiresOwnerToken(t *testing.T) {
	client, mr := newTestClient(t)
	locks := NewLockStore(client)
	ctx := context.Background()

	token, ok, err := locks.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locks.ReleaseRiderLock(ctx, "rider-1", "someone-else"))
	assert.True(t, mr.Exists(riderLockKey("rider-1")))

	require.NoError(t, locks.ReleaseRiderLock(ctx, "rider-1", token))
	assert.False(t, mr.Exists(riderLockKey("rider-1")))
}

func TestLockStore_LockExpires(t *testing.T) {
	client, mr := newTestClient(t)
	locks := NewLockStore(client)
	ctx := context.Background()

	_, ok, err := locks.AcquireRiderLock(ctx, "rider-1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok, err = locks.AcquireRiderLock(ctx, "rider-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
