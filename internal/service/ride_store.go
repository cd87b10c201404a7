package service

import (
	"context"

	"ridecoord/internal/domain"
	"ridecoord/internal/logger"
	"ridecoord/internal/redis"
	"ridecoord/internal/repository"
)

// cachedRideStore drops the cached copy of a ride after every accepted
// merge, so writers outside RideService never leave GetRide serving a
// stale document.
type cachedRideStore struct {
	repository.RideStore
	cache redis.RideCacheInterface
	log   *logger.Logger
}

// NewCacheInvalidatingRideStore wraps rides so that merges invalidate the
// ride cache. A nil cache returns rides unchanged.
func NewCacheInvalidatingRideStore(rides repository.RideStore, cache redis.RideCacheInterface, log *logger.Logger) repository.RideStore {
	if cache == nil {
		return rides
	}
	if log == nil {
		log = logger.Nop()
	}
	return &cachedRideStore{RideStore: rides, cache: cache, log: log}
}

func (s *cachedRideStore) Merge(ctx context.Context, id string, patch domain.RidePatch) (*domain.RideChange, error) {
	change, err := s.RideStore.Merge(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateRide(ctx, id); err != nil {
		s.log.Error(s.log.WithRideID(ctx, id), "ride cache invalidation failed", err)
	}
	return change, nil
}
