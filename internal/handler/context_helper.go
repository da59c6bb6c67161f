package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-portal-api/internal/middleware"
	"github.com/noah-isme/academia-portal-api/internal/models"
	appErrors "github.com/noah-isme/academia-portal-api/pkg/errors"
	"github.com/noah-isme/academia-portal-api/pkg/response"
)

// claimsFromContext returns the authenticated caller, or nil on public
// routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// bindJSON decodes the request body into dst. On failure it writes the
// validation error response itself and reports false, so handlers can
// bail out with a bare return.
func bindJSON(c *gin.Context, dst any, msg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}
