package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-registration-api/internal/models"
	appErrors "github.com/noah-isme/event-registration-api/pkg/errors"
	"github.com/noah-isme/event-registration-api/pkg/response"
)

type capacityCatalog interface {
	GetCapacity(ctx context.Context, scope models.Scope) (*models.CapacitySnapshot, error)
	Configure(ctx context.Context, scope models.Scope, total int) error
}

type metadataCache interface {
	Invalidate(ctx context.Context, eventID string, sessionIDs ...string) error
}

// CapacityHandler exposes capacity counters of events and sessions.
type CapacityHandler struct {
	capacity capacityCatalog
	cache  metadataCache
}

// NewCapacityHandler constructs CapacityHandler. cache may be nil.
func NewCapacityHandler(capacity capacityCatalog, cache metadataCache) *CapacityHandler {
	return &CapacityHandler{capacity: capacity, cache: cache}
}

// ConfigureCapacityRequest sets the total of a scope. Negative totals mean unlimited.
type ConfigureCapacityRequest struct {
	Total *int `json:"total" binding:"required"`
}

func scopeFromPath(c *gin.Context) models.Scope {
	return models.Scope{EventID: c.Param("eventId"), SessionID: c.Param("sessionId")}
}

// GetEventCapacity godoc
// @Summary Get event capacity
// @Tags Capacity
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{eventId}/capacity [get]
func (h *CapacityHandler) GetEventCapacity(c *gin.Context) {
	h.get(c)
}

// GetSessionCapacity godoc
// @Summary Get session capacity
// @Tags Capacity
// @Produce json
// @Param eventId path string true "Event ID"
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{eventId}/sessions/{sessionId}/capacity [get]
func (h *CapacityHandler) GetSessionCapacity(c *gin.Context) {
	h.get(c)
}

func (h *CapacityHandler) get(c *gin.Context) {
	snapshot, err := h.capacity.GetCapacity(c.Request.Context(), scopeFromPath(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Configure godoc
// @Summary Configure event or session capacity
// @Tags Capacity
// @Accept json
// @Produce json
// @Param eventId path string true "Event ID"
// @Param sessionId path string false "Session ID"
// @Param payload body ConfigureCapacityRequest true "Capacity payload"
// @Success 200 {object} response.Envelope
// @Router /events/{eventId}/capacity [put]
// @Router /events/{eventId}/sessions/{sessionId}/capacity [put]
func (h *CapacityHandler) Configure(c *gin.Context) {
	var req ConfigureCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	scope := scopeFromPath(c)
	if err := h.capacity.Configure(c.Request.Context(), scope, *req.Total); err != nil {
		response.Error(c, err)
		return
	}
	h.get(c)
}

// InvalidateMetadata godoc
// @Summary Drop cached event and session metadata
// @Tags Capacity
// @Param eventId path string true "Event ID"
// @Param session query []string false "Session IDs" collectionFormat(multi)
// @Success 204
// @Router /events/{eventId}/cache [delete]
func (h *CapacityHandler) InvalidateMetadata(c *gin.Context) {
	if h.cache != nil {
		if err := h.cache.Invalidate(c.Request.Context(), c.Param("eventId"), c.QueryArray("session")...); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate cache"))
			return
		}
	}
	response.NoContent(c)
}
