package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/models"
	"github.com/noah-isme/academia-portal-api/internal/service"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/response"
)

// FileHandler wires HTTP endpoints to the file service.
type FileHandler struct {
	service *service.FileService
}

// NewFileHandler creates a new handler.
func NewFileHandler(svc *service.FileService) *FileHandler {
	return &FileHandler{service: svc}
}

// Upload godoc
// @Summary Upload a result sheet or timetable
// @Description Store a base64-encoded PDF against a batch
// @Tags Files
// @Accept json
// @Produce json
// @Param payload body service.UploadFileRequest true "File payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UploadFileRequest
	if !bindJSON(c, &req, "invalid file payload") {
		return
	}

	info, err := h.service.Upload(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, info)
}

// Download godoc
// @Summary Download a stored document
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [get]
func (h *FileHandler) Download(c *gin.Context) {
	file, err := h.service.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// List godoc
// @Summary List stored documents
// @Tags Files
// @Produce json
// @Param kind query string true "RESULT or TIMETABLE"
// @Param batch_id query string false "Batch filter"
// @Param subject_id query string false "Subject filter"
// @Success 200 {object} response.Envelope
// @Router /files [get]
func (h *FileHandler) List(c *gin.Context) {
	kind := models.FileKind(strings.ToUpper(c.Query("kind")))
	files, err := h.service.List(c.Request.Context(), kind, c.Query("batch_id"), c.Query("subject_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, nil)
}

// Remove godoc
// @Summary Remove a stored document
// @Tags Files
// @Param id path string true "File ID"
// @Success 204 {object} response.Envelope
// @Router /files/{id} [delete]
func (h *FileHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
