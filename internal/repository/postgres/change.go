package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"ridecoord/internal/domain"
	"ridecoord/internal/repository"
)

// ChangeOutbox reads and acknowledges rows of the ride_changes table.
type ChangeOutbox struct {
	q Querier
}

// NewChangeOutbox creates a new PostgreSQL change outbox.
func NewChangeOutbox(db *sql.DB) *ChangeOutbox {
	return &ChangeOutbox{q: db}
}

// FetchUnpublished returns up to limit unpublished changes, oldest first.
func (o *ChangeOutbox) FetchUnpublished(ctx context.Context, limit int) ([]*domain.RideChange, error) {
	query := `
		SELECT id, ride_id, before_doc, after_doc, created_at
		FROM ride_changes
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := o.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*domain.RideChange
	for rows.Next() {
		var (
			change    domain.RideChange
			beforeDoc []byte
			afterDoc  []byte
		)
		if err := rows.Scan(&change.ID, &change.RideID, &beforeDoc, &afterDoc, &change.OccurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(beforeDoc, &change.Before); err != nil {
			return nil, fmt.Errorf("decode change %d before: %w", change.ID, err)
		}
		if err := json.Unmarshal(afterDoc, &change.After); err != nil {
			return nil, fmt.Errorf("decode change %d after: %w", change.ID, err)
		}
		changes = append(changes, &change)
	}
	return changes, rows.Err()
}

// MarkPublished flags the given changes as published.
func (o *ChangeOutbox) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE ride_changes SET published_at = now() WHERE id = ANY($1)`
	_, err := o.q.ExecContext(ctx, query, pq.Array(ids))
	return err
}

var _ repository.ChangeOutbox = (*ChangeOutbox)(nil)
