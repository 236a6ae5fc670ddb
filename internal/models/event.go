package models

import "time"

// EventStatus represents the publication status of an event.
type EventStatus string

// Event statuses.
const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusArchived  EventStatus = "ARCHIVED"
)

// Event is the metadata the registration core consults.
type Event struct {
	ID                   string      `db:"id" json:"id"`
	Title                string      `db:"title" json:"title"`
	Status               EventStatus `db:"status" json:"status"`
	StartsAt             time.Time   `db:"starts_at" json:"starts_at"`
	EndsAt               *time.Time  `db:"ends_at" json:"ends_at,omitempty"`
	RegistrationOpensAt  *time.Time  `db:"registration_opens_at" json:"registration_opens_at,omitempty"`
	RegistrationClosesAt *time.Time  `db:"registration_closes_at" json:"registration_closes_at,omitempty"`
	CancellationDeadline *time.Time  `db:"cancellation_deadline" json:"cancellation_deadline,omitempty"`
	BasePriceCents       int64       `db:"base_price_cents" json:"base_price_cents"`
	Capacity             int         `db:"capacity" json:"capacity"`
}

// TicketType is a priced ticket option of an event.
type TicketType struct {
	ID         string `db:"id" json:"id"`
	EventID    string `db:"event_id" json:"event_id"`
	Name       string `db:"name" json:"name"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Active     bool   `db:"active" json:"active"`
}

// TicketDetails carries the ticket choice of a registration request.
type TicketDetails struct {
	TicketTypeID string `json:"ticket_type_id,omitempty"`
	PromoCode    string `json:"promo_code,omitempty"`
}
