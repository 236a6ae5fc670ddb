package models

import "time"

// User is an account known to the user directory.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Guest     bool      `db:"guest" json:"guest"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
