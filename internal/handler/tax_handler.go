package handler

import (
	"net/http"
	"strconv"
	"time"

	"quotecrm/internal/middleware"
	"quotecrm/internal/model"
	"quotecrm/internal/service"
	"quotecrm/pkg/pagination"
	"quotecrm/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TaxHandler struct {
	taxService    service.TaxService
	taxCalculator service.TaxCalculator
}

func NewTaxHandler(taxService service.TaxService, taxCalculator service.TaxCalculator) *TaxHandler {
	return &TaxHandler{taxService: taxService, taxCalculator: taxCalculator}
}

func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup) {
	rates := router.Group("/api/tax-rates")
	rates.Use(middleware.RequireRole(model.RoleAdmin))
	{
		rates.GET("", h.ListTaxRates)
		rates.POST("", h.CreateTaxRate)
		rates.PUT("/:id", h.UpdateTaxRate)
		rates.DELETE("/:id", h.DeleteTaxRate)
	}

	tax := router.Group("/api/tax")
	{
		tax.POST("/calculate", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales), h.CalculateTax)
		tax.POST("/countries", middleware.RequireRole(model.RoleAdmin), h.CreateCountry)
		tax.POST("/frameworks", middleware.RequireRole(model.RoleAdmin), h.CreateFramework)
		tax.POST("/jurisdictions", middleware.RequireRole(model.RoleAdmin), h.CreateJurisdiction)
		tax.GET("/jurisdictions", middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales), h.ListJurisdictions)
	}
}

// --- Calculation ---

type calculateTaxItemRequest struct {
	LineItemID string `json:"line_item_id"`
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount" binding:"required"` // Decimal string
}

type calculateTaxRequest struct {
	ClientID        string                    `json:"client_id" binding:"required"`
	CountryID       string                    `json:"country_id"` // overrides client's country
	LineItems       []calculateTaxItemRequest `json:"line_items" binding:"required,min=1,dive"`
	DiscountAmount  string                    `json:"discount_amount"`
	CalculationDate string                    `json:"calculation_date"` // YYYY-MM-DD, defaults to today
}

// CalculateTax previews the tax breakdown for a set of line items
// @Summary      Calculate tax
// @Description  Runs line items through the tax engine for a client without persisting anything
// @Tags         tax
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      calculateTaxRequest  true  "Calculation Input"
// @Success      200      {object}  response.Response{data=service.TaxCalculationResult}
// @Failure      400      {object}  response.Response
// @Router       /api/tax/calculate [post]
func (h *TaxHandler) CalculateTax(c *gin.Context) {
	var req calculateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	input, err := buildCalculateInput(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.taxCalculator.CalculateTax(c.Request.Context(), input)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// --- Rate administration ---

// ListTaxRates returns tax rates newest first
func (h *TaxHandler) ListTaxRates(c *gin.Context) {
	p := pagination.Parse(c)

	rates, total, err := h.taxService.ListRates(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   rates,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}

// CreateTaxRate creates a new tax rate entry
// @Summary      Create tax rate
// @Description  Creates a tax rate with components, rejecting overlapping effective ranges for the same scope
// @Tags         tax
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateTaxRateRequest  true  "Tax Rate Payload"
// @Success      201      {object}  response.Response{data=service.TaxRateResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/tax-rates [post]
func (h *TaxHandler) CreateTaxRate(c *gin.Context) {
	var req service.CreateTaxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	rate, err := h.taxService.CreateRate(c.Request.Context(), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rate))
}

// UpdateTaxRate replaces a tax rate's attributes and components
func (h *TaxHandler) UpdateTaxRate(c *gin.Context) {
	var req service.CreateTaxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	rate, err := h.taxService.UpdateRate(c.Request.Context(), c.Param("id"), req, userIDFrom(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rate))
}

// DeleteTaxRate removes a tax rate
func (h *TaxHandler) DeleteTaxRate(c *gin.Context) {
	if err := h.taxService.DeleteRate(c.Request.Context(), c.Param("id"), userIDFrom(c)); err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Tax rate deleted successfully"))
}

// CreateCountry registers a taxing country
func (h *TaxHandler) CreateCountry(c *gin.Context) {
	var req service.CreateCountryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	country, err := h.taxService.CreateCountry(c.Request.Context(), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, country))
}

// CreateFramework creates a tax framework for a country
func (h *TaxHandler) CreateFramework(c *gin.Context) {
	var req service.CreateTaxFrameworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	fw, err := h.taxService.CreateFramework(c.Request.Context(), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, fw))
}

// CreateJurisdiction creates a jurisdiction, optionally under a parent
func (h *TaxHandler) CreateJurisdiction(c *gin.Context) {
	var req service.CreateJurisdictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	j, err := h.taxService.CreateJurisdiction(c.Request.Context(), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, j))
}

// ListJurisdictions returns jurisdictions for a country
func (h *TaxHandler) ListJurisdictions(c *gin.Context) {
	jurisdictions, err := h.taxService.ListJurisdictions(c.Request.Context(), c.Query("country_id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, jurisdictions))
}

// --- Helpers ---

func buildCalculateInput(req calculateTaxRequest) (service.CalculateTaxInput, error) {
	input := service.CalculateTaxInput{CalculationDate: time.Now()}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return input, err
	}
	input.ClientID = clientID

	if req.CountryID != "" {
		countryID, parseErr := uuid.Parse(req.CountryID)
		if parseErr != nil {
			return input, parseErr
		}
		input.CountryID = &countryID
	}
	if req.CalculationDate != "" {
		date, parseErr := time.Parse("2006-01-02", req.CalculationDate)
		if parseErr != nil {
			return input, parseErr
		}
		input.CalculationDate = date
	}
	if req.DiscountAmount != "" {
		input.DiscountAmount, err = decimal.NewFromString(req.DiscountAmount)
		if err != nil {
			return input, err
		}
	}

	subtotal := decimal.Zero
	for i, item := range req.LineItems {
		amount, parseErr := decimal.NewFromString(item.Amount)
		if parseErr != nil {
			return input, parseErr
		}

		line := service.TaxLineItemInput{LineItemID: item.LineItemID, Amount: amount}
		if line.LineItemID == "" {
			line.LineItemID = strconv.Itoa(i)
		}
		if item.CategoryID != "" {
			categoryID, parseErr := uuid.Parse(item.CategoryID)
			if parseErr != nil {
				return input, parseErr
			}
			line.CategoryID = &categoryID
		}

		subtotal = subtotal.Add(amount)
		input.LineItems = append(input.LineItems, line)
	}
	input.Subtotal = subtotal

	return input, nil
}
