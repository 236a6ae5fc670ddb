package models

import (
	"fmt"
	"time"
)

// UnlimitedCapacity marks a scope whose admissions are never constrained.
const UnlimitedCapacity = -1

// ScopeKind distinguishes event-wide and session-level scopes.
type ScopeKind string

// Scope kinds.
const (
	ScopeEvent   ScopeKind = "EVENT"
	ScopeSession ScopeKind = "SESSION"
)

// Scope identifies the unit over which capacity and waitlisting are tracked.
type Scope struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id,omitempty"`
}

// EventScope builds the scope of a whole event.
func EventScope(eventID string) Scope {
	return Scope{EventID: eventID}
}

// SessionScope builds the scope of one session within an event.
func SessionScope(eventID, sessionID string) Scope {
	return Scope{EventID: eventID, SessionID: sessionID}
}

// Kind reports whether the scope is event-wide or a single session.
func (s Scope) Kind() ScopeKind {
	if s.SessionID != "" {
		return ScopeSession
	}
	return ScopeEvent
}

// Key returns the storage key for the scope.
func (s Scope) Key() string {
	if s.SessionID != "" {
		return fmt.Sprintf("event:%s:session:%s", s.EventID, s.SessionID)
	}
	return fmt.Sprintf("event:%s", s.EventID)
}

// Valid reports whether the scope names an event.
func (s Scope) Valid() bool {
	return s.EventID != ""
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return s.Key()
}

// CapacityCounter is the persisted admission counter of a scope.
type CapacityCounter struct {
	ScopeKey  string    `db:"scope_key" json:"scope_key"`
	Total     int       `db:"total_capacity" json:"total"`
	Used      int       `db:"used_capacity" json:"used"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Unlimited reports whether the counter constrains admissions.
func (c CapacityCounter) Unlimited() bool {
	return c.Total < 0
}

// Snapshot converts the counter into a read model.
func (c CapacityCounter) Snapshot(scope Scope) CapacitySnapshot {
	snapshot := CapacitySnapshot{Scope: scope, Total: c.Total, Used: c.Used}
	if c.Unlimited() {
		snapshot.Unlimited = true
		snapshot.Total = UnlimitedCapacity
		snapshot.Remaining = UnlimitedCapacity
		return snapshot
	}
	snapshot.Remaining = c.Total - c.Used
	if snapshot.Remaining < 0 {
		snapshot.Remaining = 0
	}
	return snapshot
}

// CapacitySnapshot reports total, used and remaining capacity of a scope.
// Remaining and Total equal UnlimitedCapacity when the scope is unbounded.
type CapacitySnapshot struct {
	Scope     Scope `json:"scope"`
	Total     int   `json:"total"`
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
	Unlimited bool  `json:"unlimited"`
}
