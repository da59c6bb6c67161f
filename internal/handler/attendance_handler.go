package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/models"
	"github.com/noah-isme/academia-portal-api/internal/service"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/response"
)

// AttendanceHandler wires HTTP endpoints to the attendance service.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// MarkSession godoc
// @Summary Mark a held session
// @Description Record presence for every listed student in one atomic shot
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/sessions [post]
func (h *AttendanceHandler) MarkSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.MarkSessionRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}

	count, err := h.service.MarkSession(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"rows": count})
}

// Correct godoc
// @Summary Correct one attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CorrectRequest true "Correction payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/records/{id} [patch]
func (h *AttendanceHandler) Correct(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CorrectRequest
	if !bindJSON(c, &req, "invalid correction payload") {
		return
	}

	record, err := h.service.Correct(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// StudentStats godoc
// @Summary Per-subject attendance statistics for one student
// @Description Computed over held sessions; labs weigh double in the overall percentage
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param subject_id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/subjects/{subject_id}/attendance [get]
func (h *AttendanceHandler) StudentStats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	studentID := c.Param("id")
	if claims.Role == models.RoleStudent && claims.UserID != studentID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only read their own statistics"))
		return
	}

	stats, err := h.service.StudentSubjectStats(c.Request.Context(), studentID, c.Param("subject_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// SessionReport godoc
// @Summary Per-student rows of one held session
// @Tags Attendance
// @Produce json
// @Param subject_id query string true "Subject ID"
// @Param batch_id query string true "Batch ID"
// @Param date query string true "Session date YYYY-MM-DD"
// @Param type query string true "Session type LECTURE or LAB"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/report [get]
func (h *AttendanceHandler) SessionReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.service.SessionReport(c.Request.Context(), claims,
		c.Query("subject_id"), c.Query("batch_id"), c.Query("date"), c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
