package models

import "time"

// WaitlistEntry is a participant queued for capacity in a scope.
type WaitlistEntry struct {
	ID         string     `db:"id" json:"id"`
	ScopeKey   string     `db:"scope_key" json:"scope_key"`
	EventID    string     `db:"event_id" json:"event_id"`
	SessionID  *string    `db:"session_id" json:"session_id,omitempty"`
	UserID     *string    `db:"user_id" json:"user_id,omitempty"`
	Email      string     `db:"email" json:"email"`
	FullName   string     `db:"full_name" json:"full_name"`
	Position   int        `db:"position" json:"position"`
	Notified   bool       `db:"notified" json:"notified"`
	NotifiedAt *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Identity returns the participant identity of the entry.
func (w WaitlistEntry) Identity() Identity {
	id := Identity{Email: w.Email, Name: w.FullName}
	if w.UserID != nil {
		id.UserID = *w.UserID
	}
	return id
}

// Scope returns the scope the entry is queued for.
func (w WaitlistEntry) Scope() Scope {
	scope := Scope{EventID: w.EventID}
	if w.SessionID != nil {
		scope.SessionID = *w.SessionID
	}
	return scope
}

// NewWaitlistEntry builds an unsaved entry for the identity in scope.
func NewWaitlistEntry(scope Scope, identity Identity) *WaitlistEntry {
	entry := &WaitlistEntry{
		ScopeKey: scope.Key(),
		EventID:  scope.EventID,
		Email:    identity.Email,
		FullName: identity.Name,
	}
	if scope.SessionID != "" {
		sessionID := scope.SessionID
		entry.SessionID = &sessionID
	}
	if identity.UserID != "" {
		userID := identity.UserID
		entry.UserID = &userID
	}
	return entry
}
