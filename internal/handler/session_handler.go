package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/service"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/response"
)

// SessionHandler wires HTTP endpoints to the session planner.
type SessionHandler struct {
	service *service.SessionPlanService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc *service.SessionPlanService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// UpsertPlan godoc
// @Summary Create or replace a session plan
// @Description Store the weekly recurrence and regenerate the session calendar
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param batch_id path string true "Batch ID"
// @Param payload body service.UpsertPlanRequest true "Plan payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /subjects/{id}/batches/{batch_id}/plan [put]
func (h *SessionHandler) UpsertPlan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpsertPlanRequest
	if !bindJSON(c, &req, "invalid session plan payload") {
		return
	}

	plan, sessions, err := h.service.UpsertPlan(c.Request.Context(), claims, c.Param("id"), c.Param("batch_id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"plan": plan, "sessions": sessions}, nil)
}

// GetCalendar godoc
// @Summary Get the session calendar
// @Description List every planned session for a subject-batch pairing in date order
// @Tags Sessions
// @Produce json
// @Param id path string true "Subject ID"
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/batches/{batch_id}/calendar [get]
func (h *SessionHandler) GetCalendar(c *gin.Context) {
	plan, sessions, err := h.service.GetCalendar(c.Request.Context(), c.Param("id"), c.Param("batch_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"plan": plan, "sessions": sessions}, nil)
}
