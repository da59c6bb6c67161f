package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/models"
	"github.com/noah-isme/academia-portal-api/internal/service"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/response"
)

// ExportHandler wires register export generation and download.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Export the attendance register for a subject-batch pairing
// @Description Renders CSV or PDF and returns a signed download URL
// @Tags Exports
// @Produce json
// @Param subject_id query string true "Subject ID"
// @Param batch_id query string true "Batch ID"
// @Param format query string true "csv or pdf"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/register [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.service.GenerateRegister(c.Request.Context(), c.Query("subject_id"), c.Query("batch_id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a previously generated export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.service.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token"))
		return
	}

	file, err := h.service.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export no longer available"))
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}

	contentType := "text/csv"
	if filepath.Ext(relPath) == ".pdf" {
		contentType = "application/pdf"
	}
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)),
	}
	c.DataFromReader(http.StatusOK, stat.Size(), contentType, file, headers)
}
