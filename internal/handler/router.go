package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-registration-api/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Registrations *RegistrationHandler
	Sessions      *SessionHandler
	Capacity      *CapacityHandler
	Waitlist      *WaitlistHandler
}

// RegisterRoutes mounts the API on group. Staff routes require an ADMIN or ORGANIZER token.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator) {
	auth := middleware.JWT(tokens)
	optional := middleware.OptionalJWT(tokens)
	staff := middleware.RequireStaff()

	events := group.Group("/events/:eventId")
	events.POST("/registrations", optional, h.Registrations.Register)
	events.GET("/capacity", h.Capacity.GetEventCapacity)
	events.PUT("/capacity", auth, staff, h.Capacity.Configure)
	events.GET("/sessions/:sessionId/capacity", h.Capacity.GetSessionCapacity)
	events.PUT("/sessions/:sessionId/capacity", auth, staff, h.Capacity.Configure)
	events.DELETE("/cache", auth, staff, h.Capacity.InvalidateMetadata)
	events.GET("/waitlist", auth, staff, h.Waitlist.ListEvent)
	events.GET("/waitlist/position", auth, h.Waitlist.Position)

	registrations := group.Group("/registrations/:id", auth)
	registrations.GET("", h.Registrations.Get)
	registrations.DELETE("", h.Registrations.Cancel)
	registrations.GET("/cancellable", h.Registrations.CanCancel)
	registrations.GET("/sessions", h.Sessions.List)
	registrations.POST("/sessions", h.Sessions.Bulk)

	group.DELETE("/waitlist/:entryId", auth, staff, h.Waitlist.Remove)

	sessions := group.Group("/sessions/:sessionId", auth)
	sessions.POST("/registrations", h.Sessions.Register)
	sessions.DELETE("/registrations/:registrationId", h.Sessions.Cancel)
	sessions.PUT("/registrations/:registrationId/attendance", staff, h.Sessions.MarkAttendance)
	sessions.GET("/waitlist", staff, h.Waitlist.ListSession)
	sessions.GET("/roster", staff, h.Sessions.Roster)
}
