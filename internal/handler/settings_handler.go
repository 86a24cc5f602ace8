package handler

import (
	"net/http"

	"quotecrm/internal/middleware"
	"quotecrm/internal/model"
	"quotecrm/internal/service"
	"quotecrm/pkg/response"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsService service.SettingsService
}

func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup) {
	settings := router.Group("/api/settings")
	{
		settings.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales), h.GetSettings)
		settings.PUT("", middleware.RequireRole(model.RoleAdmin), h.UpdateSettings)
	}
}

// GetSettings returns the company settings singleton
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.Get(c.Request.Context())
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}

// UpdateSettings upserts the company settings singleton
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req service.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	settings, err := h.settingsService.Update(c.Request.Context(), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}
