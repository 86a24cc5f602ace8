package handler

import (
	"errors"
	"net/http"

	"quotecrm/internal/service"
	"quotecrm/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// actorFrom builds the acting principal from the JWT claims the auth
// middleware stored in the gin context.
func actorFrom(c *gin.Context) service.Actor {
	actor := service.Actor{}
	if id, ok := c.Get("userID"); ok {
		if idStr, ok := id.(string); ok {
			if parsed, err := uuid.Parse(idStr); err == nil {
				actor.ID = parsed
			}
		}
	}
	if role, ok := c.Get("userRole"); ok {
		if roleStr, ok := role.(string); ok {
			actor.Role = roleStr
		}
	}
	return actor
}

func userIDFrom(c *gin.Context) string {
	if id, ok := c.Get("userID"); ok {
		if idStr, ok := id.(string); ok {
			return idStr
		}
	}
	return ""
}

// abortServiceError maps the service layer's sentinel errors onto HTTP
// statuses. Unknown errors surface as 500s.
func abortServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrClientNotFound),
		errors.Is(err, service.ErrQuotationNotFound),
		errors.Is(err, service.ErrApprovalNotFound),
		errors.Is(err, service.ErrCountryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrQuotationLocked),
		errors.Is(err, service.ErrInvalidApprovalStatus):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusForbidden
	}
	c.JSON(status, response.Error(status, err.Error()))
}
