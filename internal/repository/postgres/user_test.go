package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecoord/internal/repository"
)

func TestRiderRepository_GetByUIDWithoutCustomer(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM riders WHERE uid = $1`)).
		WithArgs("rider-1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "email", "name", "stripe_customer_id", "created_at"}).
			AddRow("rider-1", "rider@example.com", "Ana", nil, fixedClock()))

	rider, err := repo.GetByUID(context.Background(), "rider-1")
	require.NoError(t, err)

	assert.Equal(t, "rider@example.com", rider.Email)
	assert.False(t, rider.HasCustomer())
}

func TestRiderRepository_GetByUIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM riders WHERE uid = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "email", "name", "stripe_customer_id", "created_at"}))

	_, err := repo.GetByUID(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRiderRepository_SetStripeCustomerIDOnlyOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiderRepository(db)
	update := regexp.QuoteMeta(`UPDATE riders SET stripe_customer_id = $1`)

	mock.ExpectExec(update).WithArgs("cus_1", "rider-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WithArgs("cus_2", "rider-1").WillReturnResult(sqlmock.NewResult(0, 0))

	stored, err := repo.SetStripeCustomerID(context.Background(), "rider-1", "cus_1")
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.SetStripeCustomerID(context.Background(), "rider-1", "cus_2")
	require.NoError(t, err)
	assert.False(t, stored)

	assert.NoError(t, mock.ExpectationsWereMet())
}
