package models

import "time"

// AttendanceStatus records check-in state of a session registration.
type AttendanceStatus string

// Attendance statuses.
const (
	AttendanceRegistered AttendanceStatus = "REGISTERED"
	AttendanceAttended   AttendanceStatus = "ATTENDED"
	AttendanceNoShow     AttendanceStatus = "NO_SHOW"
)

// Valid reports whether the status is one of the known values.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceRegistered, AttendanceAttended, AttendanceNoShow:
		return true
	}
	return false
}

// Session is a time-boxed part of an event with its own capacity.
type Session struct {
	ID       string     `db:"id" json:"id"`
	EventID  string     `db:"event_id" json:"event_id"`
	Title    string     `db:"title" json:"title"`
	StartsAt *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt   *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	Capacity int        `db:"capacity" json:"capacity"`
}

// Interval returns the half-open time interval of the session.
func (s Session) Interval() Interval {
	return Interval{OwnerID: s.ID, Label: s.Title, Start: s.StartsAt, End: s.EndsAt}
}

// SessionRegistration links an active registration to a session.
type SessionRegistration struct {
	ID               string           `db:"id" json:"id"`
	SessionID        string           `db:"session_id" json:"session_id"`
	RegistrationID   string           `db:"registration_id" json:"registration_id"`
	AttendanceStatus AttendanceStatus `db:"attendance_status" json:"attendance_status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// SessionRosterRow enriches a session registration with participant info.
type SessionRosterRow struct {
	SessionRegistration
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// Interval is a half-open time range [Start, End). Nil bounds mean unknown.
type Interval struct {
	OwnerID string     `json:"owner_id"`
	Label   string     `json:"label,omitempty"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

// Complete reports whether both bounds are present and ordered.
func (i Interval) Complete() bool {
	return i.Start != nil && i.End != nil && !i.Start.IsZero() && !i.End.IsZero() && i.End.After(*i.Start)
}
