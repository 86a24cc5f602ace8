package handler

import (
	"net/http"
	"time"

	"quotecrm/internal/middleware"
	"quotecrm/internal/model"
	"quotecrm/internal/repository"
	"quotecrm/internal/service"
	"quotecrm/pkg/pagination"
	"quotecrm/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ApprovalHandler struct {
	approvalService service.DiscountApprovalService
	metricsService  service.ApprovalMetricsService
}

func NewApprovalHandler(approvalService service.DiscountApprovalService, metricsService service.ApprovalMetricsService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, metricsService: metricsService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	approvals.Use(middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales))
	{
		approvals.POST("", h.RequestApproval)
		approvals.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ListApprovals)
		approvals.GET("/metrics", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.GetMetrics)
		approvals.GET("/:id", h.GetApproval)
		approvals.PUT("/:id/approve", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ApproveRequest)
		approvals.PUT("/:id/reject", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.RejectRequest)
		approvals.PUT("/:id/escalate", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.EscalateRequest)
		approvals.POST("/:id/resubmit", h.ResubmitRequest)
	}

	quotations := router.Group("/api/quotations")
	quotations.Use(middleware.RequireRole(model.RoleAdmin, model.RoleManager, model.RoleSales))
	{
		quotations.GET("/:id/approval-timeline", h.GetTimeline)
	}
}

// RequestApproval opens a discount approval for a quotation
// @Summary      Request discount approval
// @Description  Opens a discount approval for a quotation and locks it against edits until resolved
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.RequestApprovalDTO  true  "Approval Request"
// @Success      201      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals [post]
func (h *ApprovalHandler) RequestApproval(c *gin.Context) {
	var req service.RequestApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.Request(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListApprovals returns approvals, optionally filtered by status
func (h *ApprovalHandler) ListApprovals(c *gin.Context) {
	p := pagination.Parse(c)

	approvals, total, err := h.approvalService.List(c.Request.Context(), c.Query("status"), p.Page, p.Limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   approvals,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}

// GetApproval returns a single approval if the caller may view it
func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	result, err := h.approvalService.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveRequest approves a pending discount approval
// @Summary      Approve discount
// @Description  Resolves a pending approval positively and writes the discount back to the quotation
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true   "Approval ID"
// @Param        payload  body      service.ResolveApprovalDTO  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.ApprovalResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	var req service.ResolveApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — comment is optional on approve
		req.Reason = ""
	}

	result, err := h.approvalService.Approve(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest rejects a pending discount approval. A reason is mandatory.
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	var req service.ResolveApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Reason = ""
	}

	result, err := h.approvalService.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// EscalateRequest flags a pending approval for admin attention
func (h *ApprovalHandler) EscalateRequest(c *gin.Context) {
	var req service.ResolveApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Reason = ""
	}

	result, err := h.approvalService.Escalate(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ResubmitRequest opens a fresh approval after a rejection
func (h *ApprovalHandler) ResubmitRequest(c *gin.Context) {
	var req service.RequestApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.approvalService.Resubmit(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// GetTimeline returns the merged approval event history for a quotation
func (h *ApprovalHandler) GetTimeline(c *gin.Context) {
	events, err := h.approvalService.Timeline(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, events))
}

// GetMetrics summarizes approval throughput over an optional period
// @Summary      Approval metrics
// @Description  Aggregates counts, turnaround, and rejection rate over the filtered approvals
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        date_from    query     string  false  "Start date (YYYY-MM-DD)"
// @Param        date_to      query     string  false  "End date (YYYY-MM-DD)"
// @Param        approver_id  query     string  false  "Filter by approver UUID"
// @Success      200          {object}  response.Response{data=service.ApprovalMetrics}
// @Router       /api/approvals/metrics [get]
func (h *ApprovalHandler) GetMetrics(c *gin.Context) {
	filter, err := parseMetricsFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	metrics, err := h.metricsService.GetMetrics(c.Request.Context(), filter)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, metrics))
}

func parseMetricsFilter(c *gin.Context) (repository.MetricsFilter, error) {
	var filter repository.MetricsFilter

	if raw := c.Query("date_from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = &from
	}
	if raw := c.Query("date_to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, err
		}
		// Inclusive end of day
		to = to.Add(24*time.Hour - time.Nanosecond)
		filter.DateTo = &to
	}
	if raw := c.Query("approver_id"); raw != "" {
		approverID, err := uuid.Parse(raw)
		if err != nil {
			return filter, err
		}
		filter.ApproverID = &approverID
	}

	return filter, nil
}
