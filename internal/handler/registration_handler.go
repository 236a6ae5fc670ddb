package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-registration-api/internal/models"
	"github.com/noah-isme/event-registration-api/internal/service"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
	Cancel(ctx context.Context, registrationID string, actor models.Actor, reason string) (*models.Registration, error)
	CanCancel(ctx context.Context, registrationID string) (*service.CancelEligibility, error)
	GetRegistration(ctx context.Context, registrationID string, actor models.Actor) (*models.Registration, error)
}

// RegistrationHandler exposes event registration endpoints.
type RegistrationHandler struct {
	registrations registrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations registrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// CancelRegistrationRequest carries the optional cancellation reason.
type CancelRegistrationRequest struct {
	Reason string `json:"reason"`
}

// Register godoc
// @Summary Register for an event
// @Description Admits the participant or places them on the waitlist when the event is full.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param payload body service.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /events/{eventId}/registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EventID = c.Param("eventId")
	req.UserID = ""
	if claims := claimsFromContext(c); claims != nil {
		req.UserID = claims.UserID
		if claims.Email != "" {
			req.Email = claims.Email
		}
		if req.FullName == "" {
			req.FullName = claims.FullName
		}
	}

	result, err := h.registrations.Register(c.Request.Context(), req)
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

// Get godoc
// @Summary Get registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	registration, err := h.registrations.GetRegistration(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// Cancel godoc
// @Summary Cancel registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body CancelRegistrationRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	var req CancelRegistrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	registration, err := h.registrations.Cancel(c.Request.Context(), c.Param("id"), actorFromContext(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// CanCancel godoc
// @Summary Check whether a registration can be cancelled
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/cancellable [get]
func (h *RegistrationHandler) CanCancel(c *gin.Context) {
	verdict, err := h.registrations.CanCancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verdict, nil)
}
