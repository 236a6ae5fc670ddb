package models

import "strings"

// Identity names a participant either by account or by guest email.
type Identity struct {
	UserID string `json:"user_id,omitempty" db:"user_id"`
	Email  string `json:"email" db:"email"`
	Name   string `json:"name" db:"full_name"`
}

// Normalize lower-cases the email and trims whitespace.
func (i Identity) Normalize() Identity {
	return Identity{
		UserID: strings.TrimSpace(i.UserID),
		Email:  strings.ToLower(strings.TrimSpace(i.Email)),
		Name:   strings.TrimSpace(i.Name),
	}
}

// Empty reports whether neither an account nor an email is known.
func (i Identity) Empty() bool {
	return i.UserID == "" && i.Email == ""
}

// Matches reports whether two identities refer to the same participant,
// by account reference or by email, whichever is available on both sides.
func (i Identity) Matches(other Identity) bool {
	if i.UserID != "" && i.UserID == other.UserID {
		return true
	}
	if i.Email != "" && strings.EqualFold(i.Email, other.Email) {
		return true
	}
	return false
}
