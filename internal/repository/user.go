package repository

import (
	"context"

	"ridecoord/internal/domain"
)

// RiderRepository defines the persistence operations for riders.
type RiderRepository interface {
	// GetByUID retrieves a rider by auth UID.
	GetByUID(ctx context.Context, uid string) (*domain.Rider, error)

	// Upsert creates the rider if absent and fills in missing email/name.
	Upsert(ctx context.Context, rider *domain.Rider) error

	// SetStripeCustomerID stores the processor customer id only when none is
	// stored yet. It reports whether the write took effect.
	SetStripeCustomerID(ctx context.Context, uid, customerID string) (bool, error)
}
