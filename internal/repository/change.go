package repository

import (
	"context"

	"ridecoord/internal/domain"
)

// ChangeOutbox exposes the ride change rows written by Merge.
type ChangeOutbox interface {
	// FetchUnpublished returns up to limit unpublished changes, oldest first.
	FetchUnpublished(ctx context.Context, limit int) ([]*domain.RideChange, error)

	// MarkPublished flags the given changes as handed to the change stream.
	MarkPublished(ctx context.Context, ids []int64) error
}
