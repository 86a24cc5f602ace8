package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Discount thresholds. Below the minimum no approval workflow applies;
// at or above the admin threshold only an admin can resolve.
var (
	minDiscountForApproval = decimal.NewFromInt(10)
	adminDiscountThreshold = decimal.NewFromInt(20)
)

// TimelineEventType enum constants
const (
	TimelineRequested = "REQUESTED"
	TimelineApproved  = "APPROVED"
	TimelineRejected  = "REJECTED"
	TimelineEscalated = "ESCALATED"
)

// --- DTOs ---

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

type RequestApprovalDTO struct {
	QuotationID        string `json:"quotation_id" binding:"required"`
	DiscountPercentage string `json:"discount_percentage" binding:"required"` // Decimal string, e.g. "15.00"
	Reason             string `json:"reason" binding:"required"`
	Comments           string `json:"comments"`
}

type ResolveApprovalDTO struct {
	Reason string `json:"reason"`
}

type ApprovalResponse struct {
	ID                   string  `json:"id"`
	QuotationID          string  `json:"quotation_id"`
	Status               string  `json:"status"`
	ApprovalLevel        string  `json:"approval_level"`
	RequestedDiscountPct string  `json:"requested_discount_pct"`
	RequestedBy          string  `json:"requested_by"`
	RequesterName        string  `json:"requester_name"`
	ApproverID           *string `json:"approver_id"`
	ApproverName         string  `json:"approver_name"`
	RequestDate          string  `json:"request_date"`
	ApprovalDate         *string `json:"approval_date"`
	RejectionDate        *string `json:"rejection_date"`
	EscalatedToAdmin     bool    `json:"escalated_to_admin"`
	Reason               string  `json:"reason"`
	Comments             string  `json:"comments"`
}

type TimelineEvent struct {
	Type        string `json:"type"` // REQUESTED, APPROVED, REJECTED, ESCALATED
	ApprovalID  string `json:"approval_id"`
	Timestamp   string `json:"timestamp"`
	ActorID     string `json:"actor_id,omitempty"`
	Level       string `json:"approval_level"`
	DiscountPct string `json:"discount_pct"`
	Note        string `json:"note,omitempty"`
}

// --- Interface ---

type DiscountApprovalService interface {
	Request(ctx context.Context, actor Actor, req RequestApprovalDTO) (ApprovalResponse, error)
	Approve(ctx context.Context, actor Actor, id string, reason string) (ApprovalResponse, error)
	Reject(ctx context.Context, actor Actor, id string, reason string) (ApprovalResponse, error)
	Escalate(ctx context.Context, actor Actor, id string, comment string) (ApprovalResponse, error)
	Resubmit(ctx context.Context, actor Actor, previousID string, req RequestApprovalDTO) (ApprovalResponse, error)
	Get(ctx context.Context, actor Actor, id string) (ApprovalResponse, error)
	List(ctx context.Context, status string, page, limit int) ([]ApprovalResponse, int64, error)
	Timeline(ctx context.Context, actor Actor, quotationID string) ([]TimelineEvent, error)
}

// broadcaster is the websocket hub surface the service needs.
type broadcaster interface {
	GetBroadcast() chan []byte
}

type discountApprovalService struct {
	approvals  repository.ApprovalRepository
	quotations repository.QuotationRepository
	audits     repository.AuditRepository
	txm        repository.TransactionManager
	hub        broadcaster // optional
}

func NewDiscountApprovalService(approvals repository.ApprovalRepository, quotations repository.QuotationRepository, audits repository.AuditRepository, txm repository.TransactionManager, hub broadcaster) DiscountApprovalService {
	return &discountApprovalService{
		approvals:  approvals,
		quotations: quotations,
		audits:     audits,
		txm:        txm,
		hub:        hub,
	}
}

// --- Implementation ---

// Request opens a discount approval for a quotation and locks the quotation
// until the approval is resolved. The quotation row is locked FOR UPDATE for
// the check-then-act; the partial unique index on pending approvals is the
// backstop against concurrent requests racing past the flag.
func (s *discountApprovalService) Request(ctx context.Context, actor Actor, req RequestApprovalDTO) (ApprovalResponse, error) {
	quotationID, err := uuid.Parse(req.QuotationID)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid quotation_id", ErrValidation)
	}

	pct, err := decimal.NewFromString(req.DiscountPercentage)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid discount_percentage", ErrValidation)
	}
	if pct.LessThan(minDiscountForApproval) {
		return ApprovalResponse{}, fmt.Errorf("%w: discounts below %s%% do not require approval",
			ErrValidation, minDiscountForApproval.StringFixed(0))
	}
	if req.Reason == "" {
		return ApprovalResponse{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	approval := &model.DiscountApproval{
		QuotationID:          quotationID,
		Status:               model.ApprovalPending,
		ApprovalLevel:        levelForDiscount(pct),
		RequestedDiscountPct: pct,
		RequestedBy:          actor.ID,
		RequestDate:          time.Now(),
		Reason:               req.Reason,
		Comments:             req.Comments,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		quotation, findErr := s.quotations.FindByIDForUpdate(txCtx, quotationID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrQuotationNotFound
			}
			return fmt.Errorf("failed to fetch quotation: %w", findErr)
		}

		if quotation.IsPendingApproval {
			return ErrQuotationLocked
		}

		if createErr := s.approvals.Create(txCtx, approval); createErr != nil {
			return fmt.Errorf("failed to create discount approval: %w", createErr)
		}

		if lockErr := s.quotations.SetApprovalLock(txCtx, quotationID, true, &approval.ID); lockErr != nil {
			return fmt.Errorf("failed to lock quotation: %w", lockErr)
		}

		s.writeAudit(txCtx, actor.ID, model.ActionRequestDiscountApproval, approval.ID.String(), map[string]interface{}{
			"quotation_id": quotationID.String(),
			"discount_pct": pct.StringFixed(2),
			"level":        approval.ApprovalLevel,
		})
		return nil
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	s.broadcast("approval.requested", approval)
	return s.respond(ctx, approval.ID)
}

// Approve resolves a pending approval, records the approver, clears the
// quotation lock, and writes the approved discount back to the quotation.
func (s *discountApprovalService) Approve(ctx context.Context, actor Actor, id string, reason string) (ApprovalResponse, error) {
	approvalID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid approval id", ErrValidation)
	}

	var approval *model.DiscountApproval
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var txErr error
		approval, txErr = s.loadPending(txCtx, approvalID)
		if txErr != nil {
			return txErr
		}
		if authErr := canResolve(actor, approval); authErr != nil {
			return authErr
		}

		now := time.Now()
		approval.Status = model.ApprovalApproved
		approval.ApproverID = &actor.ID
		approval.ApprovalDate = &now
		if reason != "" {
			approval.Comments = reason
		}

		if updateErr := s.approvals.Update(txCtx, approval); updateErr != nil {
			return fmt.Errorf("failed to update discount approval: %w", updateErr)
		}

		quotation, findErr := s.quotations.FindByIDForUpdate(txCtx, approval.QuotationID)
		if findErr != nil {
			return fmt.Errorf("failed to fetch quotation: %w", findErr)
		}

		hundred := decimal.NewFromInt(100)
		quotation.IsPendingApproval = false
		quotation.PendingApprovalID = nil
		quotation.DiscountPercentage = approval.RequestedDiscountPct
		quotation.DiscountAmount = quotation.Subtotal.Mul(approval.RequestedDiscountPct).Div(hundred)
		quotation.TotalAmount = quotation.Subtotal.Sub(quotation.DiscountAmount).Add(quotation.TaxAmount)

		if saveErr := s.quotations.Update(txCtx, quotation); saveErr != nil {
			return fmt.Errorf("failed to unlock quotation: %w", saveErr)
		}

		s.writeAudit(txCtx, actor.ID, model.ActionApproveDiscount, approval.ID.String(), map[string]interface{}{
			"quotation_id": approval.QuotationID.String(),
			"discount_pct": approval.RequestedDiscountPct.StringFixed(2),
		})
		return nil
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	s.broadcast("approval.approved", approval)
	return s.respond(ctx, approval.ID)
}

// Reject resolves a pending approval negatively. A reason is mandatory.
// The rejected record is never mutated afterwards; a new request must be
// submitted instead.
func (s *discountApprovalService) Reject(ctx context.Context, actor Actor, id string, reason string) (ApprovalResponse, error) {
	approvalID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid approval id", ErrValidation)
	}
	if reason == "" {
		return ApprovalResponse{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	var approval *model.DiscountApproval
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var txErr error
		approval, txErr = s.loadPending(txCtx, approvalID)
		if txErr != nil {
			return txErr
		}
		if authErr := canResolve(actor, approval); authErr != nil {
			return authErr
		}

		now := time.Now()
		approval.Status = model.ApprovalRejected
		approval.ApproverID = &actor.ID
		approval.RejectionDate = &now
		approval.Comments = reason

		if updateErr := s.approvals.Update(txCtx, approval); updateErr != nil {
			return fmt.Errorf("failed to update discount approval: %w", updateErr)
		}

		if lockErr := s.quotations.SetApprovalLock(txCtx, approval.QuotationID, false, nil); lockErr != nil {
			return fmt.Errorf("failed to unlock quotation: %w", lockErr)
		}

		s.writeAudit(txCtx, actor.ID, model.ActionRejectDiscount, approval.ID.String(), map[string]interface{}{
			"quotation_id": approval.QuotationID.String(),
			"reason":       reason,
		})
		return nil
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	s.broadcast("approval.rejected", approval)
	return s.respond(ctx, approval.ID)
}

// Escalate flags a pending approval for admin attention. Status is left
// untouched; the effective approval tier becomes admin.
func (s *discountApprovalService) Escalate(ctx context.Context, actor Actor, id string, comment string) (ApprovalResponse, error) {
	approvalID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid approval id", ErrValidation)
	}
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleManager {
		return ApprovalResponse{}, ErrUnauthorized
	}

	var approval *model.DiscountApproval
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var txErr error
		approval, txErr = s.loadPending(txCtx, approvalID)
		if txErr != nil {
			return txErr
		}
		if approval.EscalatedToAdmin {
			return fmt.Errorf("%w: approval already escalated", ErrValidation)
		}

		now := time.Now()
		approval.EscalatedToAdmin = true
		approval.EscalatedAt = &now
		if comment != "" {
			approval.Comments = comment
		}

		if updateErr := s.approvals.Update(txCtx, approval); updateErr != nil {
			return fmt.Errorf("failed to update discount approval: %w", updateErr)
		}

		s.writeAudit(txCtx, actor.ID, model.ActionEscalateDiscount, approval.ID.String(), map[string]interface{}{
			"quotation_id": approval.QuotationID.String(),
		})
		return nil
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	s.broadcast("approval.escalated", approval)
	return s.respond(ctx, approval.ID)
}

// Resubmit opens a fresh approval for the same quotation after a rejection.
// The rejected record is preserved for the timeline.
func (s *discountApprovalService) Resubmit(ctx context.Context, actor Actor, previousID string, req RequestApprovalDTO) (ApprovalResponse, error) {
	prevID, err := uuid.Parse(previousID)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid approval id", ErrValidation)
	}

	previous, err := s.approvals.FindByID(ctx, prevID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ApprovalResponse{}, ErrApprovalNotFound
		}
		return ApprovalResponse{}, fmt.Errorf("failed to fetch discount approval: %w", err)
	}
	if previous.Status != model.ApprovalRejected {
		return ApprovalResponse{}, fmt.Errorf("%w: only rejected approvals can be resubmitted", ErrInvalidApprovalStatus)
	}

	req.QuotationID = previous.QuotationID.String()
	return s.Request(ctx, actor, req)
}

func (s *discountApprovalService) Get(ctx context.Context, actor Actor, id string) (ApprovalResponse, error) {
	approvalID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("%w: invalid approval id", ErrValidation)
	}

	approval, err := s.approvals.FindByIDWithRelations(ctx, approvalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ApprovalResponse{}, ErrApprovalNotFound
		}
		return ApprovalResponse{}, fmt.Errorf("failed to fetch discount approval: %w", err)
	}

	if !canView(actor, approval) {
		return ApprovalResponse{}, ErrUnauthorized
	}
	return toApprovalResponse(*approval), nil
}

func (s *discountApprovalService) List(ctx context.Context, status string, page, limit int) ([]ApprovalResponse, int64, error) {
	approvals, total, err := s.approvals.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch discount approvals: %w", err)
	}

	result := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		result = append(result, toApprovalResponse(a))
	}
	return result, total, nil
}

// Timeline synthesizes the event history of all approval attempts for a
// quotation: Requested always, then the terminal event, then Escalated if
// flagged, merged across attempts and sorted newest first.
func (s *discountApprovalService) Timeline(ctx context.Context, actor Actor, quotationID string) ([]TimelineEvent, error) {
	qid, err := uuid.Parse(quotationID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid quotation id", ErrValidation)
	}

	approvals, err := s.approvals.ListByQuotation(ctx, qid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch approvals: %w", err)
	}

	events := []TimelineEvent{}
	for _, a := range approvals {
		if !canView(actor, &a) {
			continue
		}
		events = append(events, approvalEvents(a)...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp // RFC3339 sorts lexicographically
	})
	return events, nil
}

// --- Helpers ---

func levelForDiscount(pct decimal.Decimal) string {
	if pct.GreaterThanOrEqual(adminDiscountThreshold) {
		return model.ApprovalLevelAdmin
	}
	return model.ApprovalLevelManager
}

// effectiveLevel is the tier currently required to resolve the approval.
func effectiveLevel(a *model.DiscountApproval) string {
	if a.EscalatedToAdmin {
		return model.ApprovalLevelAdmin
	}
	return a.ApprovalLevel
}

// canResolve enforces the approval tiers: admin resolves anything, managers
// resolve manager-level approvals that have not been escalated.
func canResolve(actor Actor, a *model.DiscountApproval) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleManager:
		if effectiveLevel(a) == model.ApprovalLevelManager {
			return nil
		}
	}
	return ErrUnauthorized
}

// canView allows the requester, the assigned approver, admins, and managers
// for approvals still at the manager tier.
func canView(actor Actor, a *model.DiscountApproval) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	if a.RequestedBy == actor.ID {
		return true
	}
	if a.ApproverID != nil && *a.ApproverID == actor.ID {
		return true
	}
	return actor.Role == model.RoleManager && effectiveLevel(a) == model.ApprovalLevelManager
}

// loadPending fetches an approval and verifies it is still pending.
func (s *discountApprovalService) loadPending(ctx context.Context, id uuid.UUID) (*model.DiscountApproval, error) {
	approval, err := s.approvals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to fetch discount approval: %w", err)
	}
	if approval.Status != model.ApprovalPending {
		return nil, fmt.Errorf("%w: approval is already %s", ErrInvalidApprovalStatus, approval.Status)
	}
	return approval, nil
}

func approvalEvents(a model.DiscountApproval) []TimelineEvent {
	pct := a.RequestedDiscountPct.StringFixed(2)
	events := []TimelineEvent{{
		Type:        TimelineRequested,
		ApprovalID:  a.ID.String(),
		Timestamp:   a.RequestDate.Format(time.RFC3339),
		ActorID:     a.RequestedBy.String(),
		Level:       a.ApprovalLevel,
		DiscountPct: pct,
		Note:        a.Reason,
	}}

	switch a.Status {
	case model.ApprovalApproved:
		if a.ApprovalDate != nil {
			events = append(events, TimelineEvent{
				Type:        TimelineApproved,
				ApprovalID:  a.ID.String(),
				Timestamp:   a.ApprovalDate.Format(time.RFC3339),
				ActorID:     uuidString(a.ApproverID),
				Level:       a.ApprovalLevel,
				DiscountPct: pct,
				Note:        a.Comments,
			})
		}
	case model.ApprovalRejected:
		if a.RejectionDate != nil {
			events = append(events, TimelineEvent{
				Type:        TimelineRejected,
				ApprovalID:  a.ID.String(),
				Timestamp:   a.RejectionDate.Format(time.RFC3339),
				ActorID:     uuidString(a.ApproverID),
				Level:       a.ApprovalLevel,
				DiscountPct: pct,
				Note:        a.Comments,
			})
		}
	}

	if a.EscalatedToAdmin {
		ts := a.RequestDate
		if a.EscalatedAt != nil {
			ts = *a.EscalatedAt
		}
		events = append(events, TimelineEvent{
			Type:        TimelineEscalated,
			ApprovalID:  a.ID.String(),
			Timestamp:   ts.Format(time.RFC3339),
			Level:       model.ApprovalLevelAdmin,
			DiscountPct: pct,
		})
	}
	return events
}

// respond reloads the approval with relations for the response DTO.
func (s *discountApprovalService) respond(ctx context.Context, id uuid.UUID) (ApprovalResponse, error) {
	approval, err := s.approvals.FindByIDWithRelations(ctx, id)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("failed to reload discount approval: %w", err)
	}
	return toApprovalResponse(*approval), nil
}

// writeAudit records the action inside the surrounding transaction.
// Failures are logged but never abort the workflow.
func (s *discountApprovalService) writeAudit(ctx context.Context, userID uuid.UUID, action, entityID string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:   &userID,
		Action:   action,
		EntityID: entityID,
		Details:  string(detailsJSON),
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}

// broadcast pushes an approval lifecycle event to the websocket hub.
func (s *discountApprovalService) broadcast(event string, approval *model.DiscountApproval) {
	if s.hub == nil || approval == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"type":         event,
		"approval_id":  approval.ID.String(),
		"quotation_id": approval.QuotationID.String(),
		"status":       approval.Status,
		"level":        effectiveLevel(approval),
	})
	select {
	case s.hub.GetBroadcast() <- payload:
	default:
		// Drop rather than block request handling when nobody is listening
	}
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func toApprovalResponse(a model.DiscountApproval) ApprovalResponse {
	resp := ApprovalResponse{
		ID:                   a.ID.String(),
		QuotationID:          a.QuotationID.String(),
		Status:               a.Status,
		ApprovalLevel:        a.ApprovalLevel,
		RequestedDiscountPct: a.RequestedDiscountPct.StringFixed(2),
		RequestedBy:          a.RequestedBy.String(),
		RequestDate:          a.RequestDate.Format(time.RFC3339),
		EscalatedToAdmin:     a.EscalatedToAdmin,
		Reason:               a.Reason,
		Comments:             a.Comments,
	}

	if a.Requester != nil {
		resp.RequesterName = a.Requester.Username
	}
	if a.ApproverID != nil {
		s := a.ApproverID.String()
		resp.ApproverID = &s
	}
	if a.Approver != nil {
		resp.ApproverName = a.Approver.Username
	}
	if a.ApprovalDate != nil {
		s := a.ApprovalDate.Format(time.RFC3339)
		resp.ApprovalDate = &s
	}
	if a.RejectionDate != nil {
		s := a.RejectionDate.Format(time.RFC3339)
		resp.RejectionDate = &s
	}

	return resp
}
