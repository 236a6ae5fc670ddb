package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/event-registration-api/internal/models"
)

const registrationColumns = `id, event_id, user_id, email, full_name, quantity, ticket_type_id, amount_due_cents, status, payment_status, created_at, cancelled_at, cancelled_by, cancel_reason`

// RegistrationRepository handles persistence of event registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &registration, nil
}

// FindActiveByIdentity returns the active registration matching the account or email.
func (r *RegistrationRepository) FindActiveByIdentity(ctx context.Context, eventID string, identity models.Identity) (*models.Registration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM registrations
WHERE event_id = $1 AND status = $2 AND (user_id = $3 OR LOWER(email) = LOWER($4))
ORDER BY created_at ASC LIMIT 1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, eventID, models.RegistrationStatusActive, nullableString(identity.UserID), identity.Email); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return &registration, nil
}

// Create persists a new registration. The partial unique indexes on active
// registrations surface as ErrDuplicate.
func (r *RegistrationRepository) Create(ctx context.Context, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.CreatedAt.IsZero() {
		registration.CreatedAt = time.Now().UTC()
	}
	if registration.Status == "" {
		registration.Status = models.RegistrationStatusActive
	}
	registration.Email = strings.ToLower(registration.Email)
	const query = `INSERT INTO registrations (` + registrationColumns + `)
VALUES (:id, :event_id, :user_id, :email, :full_name, :quantity, :ticket_type_id, :amount_due_cents, :status, :payment_status, :created_at, :cancelled_at, :cancelled_by, :cancel_reason)`
	if _, err := r.db.NamedExecContext(ctx, query, registration); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// Cancel moves an active registration to cancelled. It reports false when the
// registration was no longer active, so concurrent cancels release capacity once.
func (r *RegistrationRepository) Cancel(ctx context.Context, id, actorID, reason string, at time.Time) (bool, error) {
	const query = `UPDATE registrations SET status = $2, cancelled_at = $3, cancelled_by = $4, cancel_reason = $5
WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, models.RegistrationStatusCancelled, at, nullableString(actorID), nullableString(reason), models.RegistrationStatusActive)
	if err != nil {
		return false, fmt.Errorf("cancel registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel registration rows: %w", err)
	}
	return affected == 1, nil
}

// LinkUser attaches an account to a registration made as a guest.
func (r *RegistrationRepository) LinkUser(ctx context.Context, id, userID string) error {
	const query = `UPDATE registrations SET user_id = $2 WHERE id = $1 AND user_id IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("link registration user: %w", err)
	}
	return nil
}
