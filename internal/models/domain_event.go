package models

// Domain event types published by the registration services.
const (
	EventEnrollmentAdmitted           = "registration.admitted"
	EventEnrollmentWaitlisted         = "registration.waitlisted"
	EventEnrollmentCancelled          = "registration.cancelled"
	EventWaitlistEntryNotified        = "waitlist.notified"
	EventSessionRegistrationAdmitted  = "session_registration.admitted"
	EventSessionRegistrationCancelled = "session_registration.cancelled"
)

// EnrollmentAdmitted is published after a registration is persisted.
type EnrollmentAdmitted struct {
	Registration Registration
	AccountID    string
}

// EnrollmentWaitlisted is published when a request lands on a waitlist.
type EnrollmentWaitlisted struct {
	Entry WaitlistEntry
}

// EnrollmentCancelled is published after a registration is cancelled.
type EnrollmentCancelled struct {
	Registration Registration
}

// WaitlistEntryNotified is published for each entry offered a spot.
type WaitlistEntryNotified struct {
	Entry WaitlistEntry
}

// SessionRegistrationAdmitted is published after a seat in a session is taken.
type SessionRegistrationAdmitted struct {
	SessionRegistration SessionRegistration
	Session             Session
}

// SessionRegistrationCancelled is published after a session seat is released.
type SessionRegistrationCancelled struct {
	SessionRegistration SessionRegistration
	Session             Session
}
