package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireRiderLock attempts to acquire a lock for the given rider.
// It returns the lock token and true if the lock was acquired, or false if
// it is already held.
func (s *LockStore) AcquireRiderLock(ctx context.Context, uid string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, riderLockKey(uid), token, ttl).Result()
	if err != nil {
		return "", false, err
	}

	return token, ok, nil
}

// ReleaseRiderLock releases the lock for the given rider if token still owns it.
func (s *LockStore) ReleaseRiderLock(ctx context.Context, uid, token string) error {
	return releaseScript.Run(ctx, s.client, []string{riderLockKey(uid)}, token).Err()
}

func riderLockKey(uid string) string {
	return fmt.Sprintf("lock:rider:%s", uid)
}
