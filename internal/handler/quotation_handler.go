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

type QuotationHandler struct {
	quotationService service.QuotationService
}

func NewQuotationHandler(quotationService service.QuotationService) *QuotationHandler {
	return &QuotationHandler{quotationService: quotationService}
}

func (h *QuotationHandler) RegisterRoutes(router *gin.RouterGroup) {
	quotations := router.Group("/api/quotations")
	quotations.Use(middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales))
	{
		quotations.GET("", h.ListQuotations)
		quotations.GET("/:id", h.GetQuotation)
		quotations.POST("", h.CreateQuotation)
		quotations.PUT("/:id", h.UpdateQuotation)
	}
}

// CreateQuotation creates a quotation with computed totals and tax
// @Summary      Create quotation
// @Description  Creates a quotation, assigns a sequential quote number, and computes tax for the client's jurisdiction
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateQuotationRequest  true  "Quotation Payload"
// @Success      201      {object}  response.Response{data=model.Quotation}
// @Failure      400      {object}  response.Response
// @Router       /api/quotations [post]
func (h *QuotationHandler) CreateQuotation(c *gin.Context) {
	var req service.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	quotation, err := h.quotationService.Create(c.Request.Context(), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quotation))
}

// UpdateQuotation replaces the quotation's items and recomputes totals.
// Returns 409 when the quotation is locked by a pending discount approval.
func (h *QuotationHandler) UpdateQuotation(c *gin.Context) {
	var req service.UpdateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	quotation, err := h.quotationService.Update(c.Request.Context(), c.Param("id"), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quotation))
}

// GetQuotation fetches a quotation with its items
func (h *QuotationHandler) GetQuotation(c *gin.Context) {
	quotation, err := h.quotationService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quotation))
}

// ListQuotations returns quotations, optionally filtered by client
func (h *QuotationHandler) ListQuotations(c *gin.Context) {
	p := pagination.Parse(c)

	quotations, total, err := h.quotationService.List(c.Request.Context(), c.Query("client_id"), p.Page, p.Limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   quotations,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}
