package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/models"
	"github.com/noah-isme/academia-portal-api/internal/service"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/response"
)

// SubjectHandler wires HTTP endpoints to the subject service.
type SubjectHandler struct {
	service *service.SubjectService
}

// NewSubjectHandler creates a new handler.
func NewSubjectHandler(svc *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{service: svc}
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	var req service.SubjectRequest
	if !bindJSON(c, &req, "invalid subject payload") {
		return
	}
	subject, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// Get godoc
// @Summary Get subject
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	subject, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Param course_id query string false "Course filter"
// @Param semester query int false "Semester filter"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	filter := models.SubjectFilter{
		CourseID:  c.Query("course_id"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("semester"); raw != "" {
		semester, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid semester filter"))
			return
		}
		filter.Semester = &semester
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid active filter"))
			return
		}
		filter.Active = &active
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	subjects, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, pagination)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id} [put]
func (h *SubjectHandler) Update(c *gin.Context) {
	var req service.SubjectRequest
	if !bindJSON(c, &req, "invalid subject payload") {
		return
	}
	subject, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Deactivate godoc
// @Summary Deactivate subject
// @Tags Subjects
// @Param id path string true "Subject ID"
// @Success 204 {object} response.Envelope
// @Router /subjects/{id} [delete]
func (h *SubjectHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignStaff godoc
// @Summary Assign staff to a subject-batch pairing
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.AssignStaffRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments [post]
func (h *SubjectHandler) AssignStaff(c *gin.Context) {
	var req service.AssignStaffRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	assignment, err := h.service.AssignStaff(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// ListAssignments godoc
// @Summary List staff assignments
// @Tags Subjects
// @Produce json
// @Param staff_id query string false "Staff filter"
// @Param subject_id query string false "Subject filter"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *SubjectHandler) ListAssignments(c *gin.Context) {
	staffID := c.Query("staff_id")
	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleStaff {
		staffID = claims.UserID
	}
	assignments, err := h.service.ListAssignments(c.Request.Context(), staffID, c.Query("subject_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// CreateElectiveGroup godoc
// @Summary Create elective group
// @Tags Electives
// @Accept json
// @Produce json
// @Param payload body service.ElectiveGroupRequest true "Elective group payload"
// @Success 201 {object} response.Envelope
// @Router /electives [post]
func (h *SubjectHandler) CreateElectiveGroup(c *gin.Context) {
	var req service.ElectiveGroupRequest
	if !bindJSON(c, &req, "invalid elective group payload") {
		return
	}
	group, options, err := h.service.CreateElectiveGroup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"group": group, "options": options})
}

// ListElectiveGroups godoc
// @Summary List elective groups
// @Tags Electives
// @Produce json
// @Param course_id query string true "Course filter"
// @Param semester query int false "Semester filter"
// @Success 200 {object} response.Envelope
// @Router /electives [get]
func (h *SubjectHandler) ListElectiveGroups(c *gin.Context) {
	var semester *int
	if raw := c.Query("semester"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid semester filter"))
			return
		}
		semester = &value
	}
	groups, err := h.service.ListElectiveGroups(c.Request.Context(), c.Query("course_id"), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// GetElectiveGroup godoc
// @Summary Get elective group with options and demand
// @Tags Electives
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /electives/{id} [get]
func (h *SubjectHandler) GetElectiveGroup(c *gin.Context) {
	group, options, err := h.service.GetElectiveGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"group": group, "options": options}, nil)
}

// ChooseElective godoc
// @Summary Choose an elective option
// @Description Record or replace the student's choice; capacity is enforced atomically
// @Tags Electives
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /electives/{id}/choice [put]
func (h *SubjectHandler) ChooseElective(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		OptionID string `json:"option_id" binding:"required"`
	}
	if !bindJSON(c, &payload, "option_id required") {
		return
	}

	choice, err := h.service.ChooseElective(c.Request.Context(), claims.UserID, c.Param("id"), payload.OptionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, choice, nil)
}

// GetElectiveChoice godoc
// @Summary Get own elective choice
// @Tags Electives
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /electives/{id}/choice [get]
func (h *SubjectHandler) GetElectiveChoice(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	choice, err := h.service.GetElectiveChoice(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, choice, nil)
}
