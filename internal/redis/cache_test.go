package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecoord/internal/domain"
)

func TestCacheStore_RoundTripAndInvalidate(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCacheStore(client)
	ctx := context.Background()

	miss, err := cache.GetRide(ctx, "ride-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.SetRide(ctx, &domain.Ride{
		ID:            "ride-1",
		Status:        domain.RideStatusAccepted,
		DriverName:    "Sam",
		DriverVehicle: &domain.Vehicle{Make: "Toyota", Color: "Blue"},
	}))
	assert.Equal(t, RideCacheTTL, mr.TTL(rideCachePrefix+"ride-1"))

	hit, err := cache.GetRide(ctx, "ride-1")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, domain.RideStatusAccepted, hit.Status)
	assert.Equal(t, "Toyota", hit.DriverVehicle.Make)

	require.NoError(t, cache.InvalidateRide(ctx, "ride-1"))
	gone, err := cache.GetRide(ctx, "ride-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCacheStore_ExpiresAfterTTL(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCacheStore(client)
	ctx := context.Background()

	require.NoError(t, cache.SetRide(ctx, &domain.Ride{ID: "ride-1", Status: domain.RideStatusPending}))
	mr.FastForward(RideCacheTTL + 1)

	ride, err := cache.GetRide(ctx, "ride-1")
	require.NoError(t, err)
	assert.Nil(t, ride)
}
