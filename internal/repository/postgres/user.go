package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/repository"
)

// RiderRepository is a PostgreSQL implementation of repository.RiderRepository.
type RiderRepository struct {
	q Querier
}

// NewRiderRepository creates a new PostgreSQL rider repository.
func NewRiderRepository(db *sql.DB) *RiderRepository {
	return &RiderRepository{q: db}
}

// GetByUID retrieves a rider by UID.
func (r *RiderRepository) GetByUID(ctx context.Context, uid string) (*domain.Rider, error) {
	query := `
		SELECT uid, email, name, stripe_customer_id, created_at
		FROM riders WHERE uid = $1
	`

	var rider domain.Rider
	var customerID sql.NullString
	err := r.q.QueryRowContext(ctx, query, uid).Scan(
		&rider.UID,
		&rider.Email,
		&rider.Name,
		&customerID,
		&rider.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if customerID.Valid {
		rider.StripeCustomerID = customerID.String
	}

	return &rider, nil
}

// Upsert creates the rider if absent. Existing non-empty email and name
// are kept.
func (r *RiderRepository) Upsert(ctx context.Context, rider *domain.Rider) error {
	query := `
		INSERT INTO riders (uid, email, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE
		SET email = COALESCE(NULLIF(riders.email, ''), EXCLUDED.email),
		    name = COALESCE(NULLIF(riders.name, ''), EXCLUDED.name)
	`

	createdAt := rider.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, query, rider.UID, rider.Email, rider.Name, createdAt)
	return err
}

// SetStripeCustomerID stores the customer id only if the rider has none.
func (r *RiderRepository) SetStripeCustomerID(ctx context.Context, uid, customerID string) (bool, error) {
	query := `
		UPDATE riders SET stripe_customer_id = $1
		WHERE uid = $2 AND stripe_customer_id IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, customerID, uid)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

var _ repository.RiderRepository = (*RiderRepository)(nil)
