package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/service"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/response"
)

type sessionRegistrationService interface {
	RegisterForSession(ctx context.Context, sessionID, registrationID string, actor models.Actor) (*service.SessionRegisterResult, error)
	CancelSessionRegistration(ctx context.Context, sessionID, registrationID string, actor models.Actor) error
	BulkRegisterSessions(ctx context.Context, registrationID string, sessionIDs []string, actor models.Actor) (*service.BulkSessionResult, error)
	MarkAttendance(ctx context.Context, sessionID, registrationID string, status models.AttendanceStatus) error
	ListSessions(ctx context.Context, registrationID string, actor models.Actor) ([]models.Session, error)
	ExportSessionRoster(ctx context.Context, sessionID, format string) (*service.RosterExport, error)
}

// SessionHandler exposes session seat endpoints.
type SessionHandler struct {
	sessions sessionRegistrationService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionRegistrationService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SessionRegistrationRequest names the registration taking a seat.
type SessionRegistrationRequest struct {
	RegistrationID string `json:"registration_id" binding:"required"`
}

// BulkSessionRequest lists sessions to register into.
type BulkSessionRequest struct {
	SessionIDs []string `json:"session_ids" binding:"required"`
}

// AttendanceRequest carries the new attendance status.
type AttendanceRequest struct {
	Status string `json:"status" binding:"required"`
}

// Register godoc
// @Summary Register for a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body SessionRegistrationRequest true "Session registration payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{sessionId}/registrations [post]
func (h *SessionHandler) Register(c *gin.Context) {
	var req SessionRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.sessions.RegisterForSession(c.Request.Context(), c.Param("sessionId"), req.RegistrationID, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Waitlisted {
		response.Accepted(c, result)
		return
	}
	response.Created(c, result)
}

// Cancel godoc
// @Summary Cancel a session registration
// @Tags Sessions
// @Param sessionId path string true "Session ID"
// @Param registrationId path string true "Registration ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /sessions/{sessionId}/registrations/{registrationId} [delete]
func (h *SessionHandler) Cancel(c *gin.Context) {
	if err := h.sessions.CancelSessionRegistration(c.Request.Context(), c.Param("sessionId"), c.Param("registrationId"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Bulk godoc
// @Summary Register into several sessions
// @Description Each session is attempted independently; partial success is reported per item.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body BulkSessionRequest true "Session ids"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/sessions [post]
func (h *SessionHandler) Bulk(c *gin.Context) {
	var req BulkSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.sessions.BulkRegisterSessions(c.Request.Context(), c.Param("id"), req.SessionIDs, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List sessions held by a registration
// @Tags Sessions
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.ListSessions(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// MarkAttendance godoc
// @Summary Mark attendance
// @Tags Sessions
// @Accept json
// @Param sessionId path string true "Session ID"
// @Param registrationId path string true "Registration ID"
// @Param payload body AttendanceRequest true "REGISTERED, ATTENDED or NO_SHOW"
// @Success 204
// @Router /sessions/{sessionId}/registrations/{registrationId}/attendance [put]
func (h *SessionHandler) MarkAttendance(c *gin.Context) {
	var req AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	status := models.AttendanceStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err := h.sessions.MarkAttendance(c.Request.Context(), c.Param("sessionId"), c.Param("registrationId"), status); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary Export session roster
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param sessionId path string true "Session ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /sessions/{sessionId}/roster [get]
func (h *SessionHandler) Roster(c *gin.Context) {
	roster, err := h.sessions.ExportSessionRoster(c.Request.Context(), c.Param("sessionId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, roster.Filename, roster.ContentType, roster.Data)
}
