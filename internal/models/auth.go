package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for access control.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleOrganizer   UserRole = "ORGANIZER"
	RoleParticipant UserRole = "PARTICIPANT"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor is the caller performing a state transition.
type Actor struct {
	UserID string
	Email  string
	Admin  bool
}

// ActorFromClaims derives the acting identity from token claims.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{
		UserID: claims.UserID,
		Email:  claims.Email,
		Admin:  claims.Role == RoleAdmin || claims.Role == RoleOrganizer,
	}
}

// Identity returns the participant identity of the actor.
func (a Actor) Identity() Identity {
	return Identity{UserID: a.UserID, Email: a.Email}
}
