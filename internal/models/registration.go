package models

import "time"

// RegistrationStatus represents the lifecycle of an event enrollment.
type RegistrationStatus string

// Possible registration statuses. Cancelled is terminal.
const (
	RegistrationStatusActive    RegistrationStatus = "ACTIVE"
	RegistrationStatusCancelled RegistrationStatus = "CANCELLED"
)

// Payment statuses assigned when the caller does not supply one.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusFree    = "FREE"
)

// Registration is a participant's enrollment in an event.
type Registration struct {
	ID             string             `db:"id" json:"id"`
	EventID        string             `db:"event_id" json:"event_id"`
	UserID         *string            `db:"user_id" json:"user_id,omitempty"`
	Email          string             `db:"email" json:"email"`
	FullName       string             `db:"full_name" json:"full_name"`
	Quantity       int                `db:"quantity" json:"quantity"`
	TicketTypeID   *string            `db:"ticket_type_id" json:"ticket_type_id,omitempty"`
	AmountDueCents int64              `db:"amount_due_cents" json:"amount_due_cents"`
	Status         RegistrationStatus `db:"status" json:"status"`
	PaymentStatus  string             `db:"payment_status" json:"payment_status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	CancelledAt    *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy    *string            `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason   *string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// Identity returns the participant identity of the registration.
func (r Registration) Identity() Identity {
	id := Identity{Email: r.Email, Name: r.FullName}
	if r.UserID != nil {
		id.UserID = *r.UserID
	}
	return id
}

// Active reports whether the registration still holds capacity.
func (r Registration) Active() bool {
	return r.Status == RegistrationStatusActive
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	EventID  string
	Status   RegistrationStatus
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
