package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/repository"
)

// RideStore is a PostgreSQL implementation of repository.RideStore.
// Rides are stored as JSONB documents; status and deadline columns are
// kept alongside for indexing.
type RideStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRideStore creates a new PostgreSQL ride store.
func NewRideStore(db *sql.DB) *RideStore {
	return &RideStore{db: db, now: time.Now}
}

// Create persists a new ride.
func (s *RideStore) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, status, doc, timeout_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := s.now().UTC()
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = now
	}
	ride.UpdatedAt = now

	doc, err := json.Marshal(ride)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		ride.ID,
		ride.Status,
		doc,
		nullableTime(ride.TimeoutAt),
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return err
}

// Get retrieves a ride by ID.
func (s *RideStore) Get(ctx context.Context, id string) (*domain.Ride, error) {
	return getRide(ctx, s.db, id, false)
}

// Merge applies patch under the ride's row lock and records the change in
// the ride_changes outbox within the same transaction.
func (s *RideStore) Merge(ctx context.Context, id string, patch domain.RidePatch) (*domain.RideChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := getRide(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	after, err := repository.ApplyPatch(before, patch, now)
	if err != nil {
		return nil, err
	}

	afterDoc, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	beforeDoc, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE rides
		SET status = $1, doc = $2, timeout_at = $3, updated_at = $4, archived_at = $5
		WHERE id = $6
	`
	if _, err := tx.ExecContext(ctx, update,
		after.Status,
		afterDoc,
		nullableTime(after.TimeoutAt),
		after.UpdatedAt,
		nullableTime(after.ArchivedAt),
		id,
	); err != nil {
		return nil, fmt.Errorf("update ride: %w", err)
	}

	change := &domain.RideChange{
		RideID:     id,
		Before:     before,
		After:      after,
		OccurredAt: now,
	}
	insert := `
		INSERT INTO ride_changes (ride_id, before_doc, after_doc, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, insert, id, beforeDoc, afterDoc, now).Scan(&change.ID); err != nil {
		return nil, fmt.Errorf("record ride change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}

	return change, nil
}

// FindExpiredPending returns pending rides whose timeout has passed.
func (s *RideStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM rides
		WHERE status = $1 AND timeout_at IS NOT NULL AND timeout_at < $2
		ORDER BY timeout_at
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, domain.RideStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getRide(ctx context.Context, q Querier, id string, forUpdate bool) (*domain.Ride, error) {
	query := `SELECT doc FROM rides WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var doc []byte
	if err := q.QueryRowContext(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var ride domain.Ride
	if err := json.Unmarshal(doc, &ride); err != nil {
		return nil, fmt.Errorf("decode ride %s: %w", id, err)
	}
	ride.ID = id
	return &ride, nil
}

var _ repository.RideStore = (*RideStore)(nil)
