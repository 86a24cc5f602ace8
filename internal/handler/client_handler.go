package handler

import (
	"net/http"

	"quotecrm/internal/middleware"
	"quotecrm/internal/model"
	"quotecrm/internal/service"
	"quotecrm/pkg/pagination"
	"quotecrm/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	clientService service.ClientService
}

func NewClientHandler(clientService service.ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/api/clients")
	clients.Use(middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales))
	{
		clients.GET("", h.ListClients)
		clients.GET("/:id", h.GetClient)
		clients.POST("", h.CreateClient)
		clients.PUT("/:id", h.UpdateClient)
		clients.DELETE("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.DeleteClient)
	}
}

// CreateClient registers a new client with its tax jurisdiction references
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// UpdateClient replaces a client's details
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clientService.Update(c.Request.Context(), c.Param("id"), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// GetClient fetches a single client
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clientService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// ListClients returns a paginated client list
func (h *ClientHandler) ListClients(c *gin.Context) {
	p := pagination.Parse(c)

	clients, total, err := h.clientService.List(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   clients,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}

// DeleteClient soft deletes a client
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clientService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Client deleted successfully"))
}
