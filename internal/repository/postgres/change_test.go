package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecoord/internal/domain"
)

func TestChangeOutbox_FetchUnpublished(t *testing.T) {
	db, mock := newMockDB(t)
	outbox := NewChangeOutbox(db)
	at := fixedClock()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM ride_changes`)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ride_id", "before_doc", "after_doc", "created_at"}).
			AddRow(int64(7), "ride-1", []byte(`{"status":"pending"}`), []byte(`{"status":"accepted"}`), at).
			AddRow(int64(8), "ride-1", []byte(`{"status":"accepted"}`), []byte(`{"status":"arrived"}`), at))

	changes, err := outbox.FetchUnpublished(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, int64(7), changes[0].ID)
	assert.Equal(t, "ride-1", changes[0].RideID)
	assert.Equal(t, domain.RideStatusPending, changes[0].Before.Status)
	assert.Equal(t, domain.RideStatusAccepted, changes[0].After.Status)
	assert.Equal(t, domain.RideStatusArrived, changes[1].After.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeOutbox_FetchUnpublishedRejectsCorruptDocument(t *testing.T) {
	db, mock := newMockDB(t)
	outbox := NewChangeOutbox(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM ride_changes`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ride_id", "before_doc", "after_doc", "created_at"}).
			AddRow(int64(7), "ride-1", []byte(`{"status":"pending"}`), []byte(`not json`), fixedClock()))

	_, err := outbox.FetchUnpublished(context.Background(), 50)

	assert.ErrorContains(t, err, "decode change 7 after")
}

func TestChangeOutbox_MarkPublished(t *testing.T) {
	db, mock := newMockDB(t)
	outbox := NewChangeOutbox(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE ride_changes SET published_at = now() WHERE id = ANY($1)`)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, outbox.MarkPublished(context.Background(), []int64{7, 8}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeOutbox_MarkPublishedNothing(t *testing.T) {
	db, mock := newMockDB(t)
	outbox := NewChangeOutbox(db)

	require.NoError(t, outbox.MarkPublished(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
