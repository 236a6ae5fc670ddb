package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/event-registration-api/internal/models"
)

var registrationRowColumns = []string{"id", "event_id", "user_id", "email", "full_name", "quantity", "ticket_type_id", "amount_due_cents", "status", "payment_status", "created_at", "cancelled_at", "cancelled_by", "cancel_reason"}

func TestRegistrationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM registrations WHERE id = $1")).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).
			AddRow("r-1", "e1", "u-1", "a@x.io", "A", 2, nil, 5000, "ACTIVE", "PENDING", time.Now(), nil, nil, nil))

	registration, err := repo.FindByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, 2, registration.Quantity)
	assert.Equal(t, int64(5000), registration.AmountDueCents)
	assert.True(t, registration.Active())
	assert.Equal(t, "u-1", registration.Identity().UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryFindActiveByIdentityMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE event_id = $1 AND status = $2 AND (user_id = $3 OR LOWER(email) = LOWER($4))")).
		WithArgs("e1", models.RegistrationStatusActive, nil, "a@x.io").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns))

	_, err := repo.FindActiveByIdentity(context.Background(), "e1", models.Identity{Email: "a@x.io"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO registrations").WillReturnResult(sqlmock.NewResult(1, 1))

	registration := &models.Registration{EventID: "e1", Email: "A@X.io", FullName: "A", Quantity: 1}
	require.NoError(t, repo.Create(context.Background(), registration))
	assert.NotEmpty(t, registration.ID)
	assert.Equal(t, "a@x.io", registration.Email)
	assert.Equal(t, models.RegistrationStatusActive, registration.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO registrations").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Registration{EventID: "e1", Email: "a@x.io", Quantity: 1})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCancelOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WithArgs("r-1", models.RegistrationStatusCancelled, at, "u-1", nil, models.RegistrationStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = $2")).
		WithArgs("r-1", models.RegistrationStatusCancelled, at, "u-1", nil, models.RegistrationStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Cancel(context.Background(), "r-1", "u-1", "", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Cancel(context.Background(), "r-1", "u-1", "", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryLinkUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET user_id = $2 WHERE id = $1 AND user_id IS NULL")).
		WithArgs("r-1", "u-9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.LinkUser(context.Background(), "r-1", "u-9"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
