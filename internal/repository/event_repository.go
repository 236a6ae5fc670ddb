package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/event-registration-api/internal/models"
)

// EventRepository reads event, session and ticket metadata owned by the catalogue.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// FindByID returns an event.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	const query = `SELECT id, title, status, starts_at, ends_at, registration_opens_at, registration_closes_at, cancellation_deadline, base_price_cents, capacity
FROM events WHERE id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

// FindSession returns a session.
func (r *EventRepository) FindSession(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, event_id, title, starts_at, ends_at, capacity FROM event_sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// FindTicketType returns a ticket type of the event.
func (r *EventRepository) FindTicketType(ctx context.Context, eventID, id string) (*models.TicketType, error) {
	const query = `SELECT id, event_id, name, price_cents, active FROM ticket_types WHERE id = $1 AND event_id = $2`
	var ticket models.TicketType
	if err := r.db.GetContext(ctx, &ticket, query, id, eventID); err != nil {
		if err = mapNoRows(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find ticket type: %w", err)
	}
	return &ticket, nil
}
