package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/event-registration-api/internal/models"
)

const sessionRegistrationColumns = `id, session_id, registration_id, attendance_status, created_at`

// SessionRegistrationRepository handles persistence of session seats.
type SessionRegistrationRepository struct {
	db *sqlx.DB
}

// NewSessionRegistrationRepository constructs the repository.
func NewSessionRegistrationRepository(db *sqlx.DB) *SessionRegistrationRepository {
	return &SessionRegistrationRepository{db: db}
}

// Create persists a session registration, mapping the (session, registration) unique key to ErrDuplicate.
func (r *SessionRegistrationRepository) Create(ctx context.Context, sr *models.SessionRegistration) error {
	if sr.ID == "" {
		sr.ID = uuid.NewString()
	}
	if sr.CreatedAt.IsZero() {
		sr.CreatedAt = time.Now().UTC()
	}
	if sr.AttendanceStatus == "" {
		sr.AttendanceStatus = models.AttendanceRegistered
	}
	const query = `INSERT INTO session_registrations (` + sessionRegistrationColumns + `)
VALUES (:id, :session_id, :registration_id, :attendance_status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sr); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create session registration: %w", err)
	}
	return nil
}

// Find returns the session registration for the pair.
func (r *SessionRegistrationRepository) Find(ctx context.Context, sessionID, registrationID string) (*models.SessionRegistration, error) {
	const query = `SELECT ` + sessionRegistrationColumns + ` FROM session_registrations WHERE session_id = $1 AND registration_id = $2`
	var sr models.SessionRegistration
	if err := r.db.GetContext(ctx, &sr, query, sessionID, registrationID); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find session registration: %w", err)
	}
	return &sr, nil
}

// Delete removes the pair and returns the deleted row. A concurrent second
// delete observes ErrNotFound, so the seat is released once.
func (r *SessionRegistrationRepository) Delete(ctx context.Context, sessionID, registrationID string) (*models.SessionRegistration, error) {
	const query = `DELETE FROM session_registrations WHERE session_id = $1 AND registration_id = $2 RETURNING ` + sessionRegistrationColumns
	var sr models.SessionRegistration
	if err := r.db.GetContext(ctx, &sr, query, sessionID, registrationID); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("delete session registration: %w", err)
	}
	return &sr, nil
}

// ListSessionsByRegistration returns the sessions a registration holds seats in, by start time.
func (r *SessionRegistrationRepository) ListSessionsByRegistration(ctx context.Context, registrationID string) ([]models.Session, error) {
	const query = `SELECT s.id, s.event_id, s.title, s.starts_at, s.ends_at, s.capacity
FROM session_registrations sr
JOIN event_sessions s ON s.id = sr.session_id
WHERE sr.registration_id = $1
ORDER BY s.starts_at ASC NULLS LAST, s.id ASC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, registrationID); err != nil {
		return nil, fmt.Errorf("list registration sessions: %w", err)
	}
	return sessions, nil
}

// UpdateAttendance sets the attendance status of the pair.
func (r *SessionRegistrationRepository) UpdateAttendance(ctx context.Context, sessionID, registrationID string, status models.AttendanceStatus) error {
	const query = `UPDATE session_registrations SET attendance_status = $3 WHERE session_id = $1 AND registration_id = $2`
	res, err := r.db.ExecContext(ctx, query, sessionID, registrationID, status)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRoster returns the session's registrations with participant names.
func (r *SessionRegistrationRepository) ListRoster(ctx context.Context, sessionID string) ([]models.SessionRosterRow, error) {
	const query = `SELECT sr.id, sr.session_id, sr.registration_id, sr.attendance_status, sr.created_at, reg.full_name, reg.email
FROM session_registrations sr
JOIN registrations reg ON reg.id = sr.registration_id
WHERE sr.session_id = $1
ORDER BY reg.full_name ASC, sr.created_at ASC`
	var rows []models.SessionRosterRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session roster: %w", err)
	}
	return rows, nil
}
