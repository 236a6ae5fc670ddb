package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/response"
)

type waitlistQueue interface {
	List(ctx context.Context, scope models.Scope) ([]models.WaitlistEntry, error)
	GetPosition(ctx context.Context, scope models.Scope, identity models.Identity) (*models.WaitlistEntry, error)
	Remove(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
}

type sessionScopeResolver interface {
	SessionScope(ctx context.Context, sessionID string) (models.Scope, error)
}

// WaitlistHandler exposes waitlist inspection and administration.
type WaitlistHandler struct {
	waitlist waitlistQueue
	sessions sessionScopeResolver
}

// NewWaitlistHandler constructs WaitlistHandler.
func NewWaitlistHandler(waitlist waitlistQueue, sessions sessionScopeResolver) *WaitlistHandler {
	return &WaitlistHandler{waitlist: waitlist, sessions: sessions}
}

// ListEvent godoc
// @Summary List event waitlist
// @Tags Waitlist
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{eventId}/waitlist [get]
func (h *WaitlistHandler) ListEvent(c *gin.Context) {
	h.list(c, models.EventScope(c.Param("eventId")))
}

// ListSession godoc
// @Summary List session waitlist
// @Tags Waitlist
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/waitlist [get]
func (h *WaitlistHandler) ListSession(c *gin.Context) {
	scope, err := h.sessions.SessionScope(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.list(c, scope)
}

func (h *WaitlistHandler) list(c *gin.Context, scope models.Scope) {
	entries, err := h.waitlist.List(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, map[string]interface{}{"count": len(entries)})
}

// Position godoc
// @Summary Get own waitlist position
// @Description Looks up the caller's own entry by token identity.
// @Tags Waitlist
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{eventId}/waitlist/position [get]
func (h *WaitlistHandler) Position(c *gin.Context) {
	identity := actorFromContext(c).Identity()
	if identity.Empty() {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required"))
		return
	}
	entry, err := h.waitlist.GetPosition(c.Request.Context(), models.EventScope(c.Param("eventId")), identity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"position": entry.Position, "notified": entry.Notified, "entry_id": entry.ID}, nil)
}

// Remove godoc
// @Summary Remove waitlist entry
// @Tags Waitlist
// @Param entryId path string true "Entry ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /waitlist/{entryId} [delete]
func (h *WaitlistHandler) Remove(c *gin.Context) {
	if _, err := h.waitlist.Remove(c.Request.Context(), c.Param("entryId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
