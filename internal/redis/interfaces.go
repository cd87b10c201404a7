package redis

import (
	"context"
	"time"

	"ridecoord/internal/domain"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireRiderLock(ctx context.Context, uid string, ttl time.Duration) (string, bool, error)
	ReleaseRiderLock(ctx context.Context, uid, token string) error
}

// RideCacheInterface defines the interface for ride caching.
type RideCacheInterface interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface = (*LockStore)(nil)
	_ RideCacheInterface = (*CacheStore)(nil)
)
