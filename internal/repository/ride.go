package repository

import (
	"context"
	"time"

	"ridecoord/internal/domain"
)

// RideStore defines the persistence operations for ride documents.
type RideStore interface {
	// Create persists a new ride. It does not emit a change.
	Create(ctx context.Context, ride *domain.Ride) error

	// Get retrieves a ride by ID.
	Get(ctx context.Context, id string) (*domain.Ride, error)

	// Merge atomically applies a partial update and returns the resulting
	// before/after pair. Fields absent from the patch are left untouched.
	Merge(ctx context.Context, id string, patch domain.RidePatch) (*domain.RideChange, error)

	// FindExpiredPending returns the IDs of pending rides whose search
	// deadline is before now.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error)
}
