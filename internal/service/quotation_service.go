package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type QuotationItemRequest struct {
	Description string `json:"description" binding:"required"`
	CategoryID  string `json:"category_id"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price" binding:"required"` // Decimal string
}

type CreateQuotationRequest struct {
	ClientID           string                 `json:"client_id" binding:"required"`
	Items              []QuotationItemRequest `json:"items" binding:"required,min=1,dive"`
	DiscountPercentage string                 `json:"discount_percentage"` // below 10% only; larger needs approval
	Note               string                 `json:"note"`
}

type UpdateQuotationRequest struct {
	Items              []QuotationItemRequest `json:"items" binding:"required,min=1,dive"`
	DiscountPercentage string                 `json:"discount_percentage"`
	Note               string                 `json:"note"`
}

// --- Interface ---

type QuotationService interface {
	Create(ctx context.Context, req CreateQuotationRequest, userID string) (*model.Quotation, error)
	Update(ctx context.Context, id string, req UpdateQuotationRequest, userID string) (*model.Quotation, error)
	GetByID(ctx context.Context, id string) (*model.Quotation, error)
	List(ctx context.Context, clientID string, page, limit int) ([]model.Quotation, int64, error)
}

type quotationService struct {
	quotations repository.QuotationRepository
	clients    repository.ClientRepository
	audits     repository.AuditRepository
	txm        repository.TransactionManager
	taxCalc    TaxCalculator
}

func NewQuotationService(quotations repository.QuotationRepository, clients repository.ClientRepository, audits repository.AuditRepository, txm repository.TransactionManager, taxCalc TaxCalculator) QuotationService {
	return &quotationService{
		quotations: quotations,
		clients:    clients,
		audits:     audits,
		txm:        txm,
		taxCalc:    taxCalc,
	}
}

// --- Implementation ---

func (s *quotationService) Create(ctx context.Context, req CreateQuotationRequest, userID string) (*model.Quotation, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid client_id", ErrValidation)
	}
	if _, err := s.clients.FindByID(ctx, clientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}

	discountPct, err := parseDirectDiscount(req.DiscountPercentage)
	if err != nil {
		return nil, err
	}

	items, subtotal, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	quotation := &model.Quotation{
		ClientID:           clientID,
		Status:             model.QuotationStatusDraft,
		Subtotal:           subtotal,
		DiscountPercentage: discountPct,
		Note:               req.Note,
		Items:              items,
	}
	if userID != "" {
		if parsed, parseErr := uuid.Parse(userID); parseErr == nil {
			quotation.CreatedBy = &parsed
		}
	}

	if err := s.applyTax(ctx, clientID, quotation); err != nil {
		return nil, err
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		seq, numErr := s.quotations.NextQuoteNumber(txCtx, quoteNumberPrefix())
		if numErr != nil {
			return fmt.Errorf("failed to generate quote number: %w", numErr)
		}
		quotation.QuoteNumber = fmt.Sprintf("%s%05d", quoteNumberPrefix(), seq)

		if createErr := s.quotations.Create(txCtx, quotation); createErr != nil {
			return fmt.Errorf("failed to create quotation: %w", createErr)
		}

		s.writeAudit(txCtx, userID, model.ActionCreateQuotation, quotation.ID.String(), quotation.QuoteNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.quotations.FindByIDWithItems(ctx, quotation.ID)
}

// Update replaces the quotation's items and note and recomputes totals.
// A quotation with a pending discount approval is locked against edits.
func (s *quotationService) Update(ctx context.Context, id string, req UpdateQuotationRequest, userID string) (*model.Quotation, error) {
	quotationID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid quotation id", ErrValidation)
	}

	discountPct, err := parseDirectDiscount(req.DiscountPercentage)
	if err != nil {
		return nil, err
	}

	items, subtotal, err := buildItems(req.Items)
	if err != nil {
		return nil, err
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

		quotation.Subtotal = subtotal
		quotation.DiscountPercentage = discountPct
		quotation.Note = req.Note
		quotation.Items = items
		if taxErr := s.applyTax(txCtx, quotation.ClientID, quotation); taxErr != nil {
			return taxErr
		}

		if itemsErr := s.quotations.ReplaceItems(txCtx, quotationID, items); itemsErr != nil {
			return fmt.Errorf("failed to replace quotation items: %w", itemsErr)
		}

		quotation.Items = nil // items were persisted separately
		if saveErr := s.quotations.Update(txCtx, quotation); saveErr != nil {
			return fmt.Errorf("failed to update quotation: %w", saveErr)
		}

		s.writeAudit(txCtx, userID, model.ActionUpdateQuotation, quotation.ID.String(), quotation.QuoteNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.quotations.FindByIDWithItems(ctx, quotationID)
}

func (s *quotationService) GetByID(ctx context.Context, id string) (*model.Quotation, error) {
	quotationID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid quotation id", ErrValidation)
	}

	quotation, err := s.quotations.FindByIDWithItems(ctx, quotationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuotationNotFound
		}
		return nil, fmt.Errorf("failed to fetch quotation: %w", err)
	}
	return quotation, nil
}

func (s *quotationService) List(ctx context.Context, clientID string, page, limit int) ([]model.Quotation, int64, error) {
	var filter *uuid.UUID
	if clientID != "" {
		parsed, err := uuid.Parse(clientID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid client_id", ErrValidation)
		}
		filter = &parsed
	}
	return s.quotations.List(ctx, filter, page, limit)
}

// --- Helpers ---

// applyTax runs the quotation through the tax engine and writes the
// resulting amounts onto the quotation and its items.
func (s *quotationService) applyTax(ctx context.Context, clientID uuid.UUID, quotation *model.Quotation) error {
	hundred := decimal.NewFromInt(100)
	quotation.DiscountAmount = quotation.Subtotal.Mul(quotation.DiscountPercentage).Div(hundred)

	lineItems := make([]TaxLineItemInput, 0, len(quotation.Items))
	for i, item := range quotation.Items {
		lineItems = append(lineItems, TaxLineItemInput{
			LineItemID: strconv.Itoa(i),
			CategoryID: item.CategoryID,
			Amount:     item.Amount,
		})
	}

	result, err := s.taxCalc.CalculateTax(ctx, CalculateTaxInput{
		ClientID:        clientID,
		LineItems:       lineItems,
		Subtotal:        quotation.Subtotal,
		DiscountAmount:  quotation.DiscountAmount,
		CalculationDate: time.Now(),
	})
	if err != nil {
		return err
	}

	for i := range quotation.Items {
		if i < len(result.LineItems) {
			quotation.Items[i].TaxAmount = result.LineItems[i].TaxAmount
		}
	}
	quotation.TaxAmount = result.TotalTax
	quotation.TotalAmount = result.TotalAmount
	return nil
}

// parseDirectDiscount accepts discounts below the approval threshold only.
// Anything at or above it must go through the approval workflow.
func parseDirectDiscount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid discount_percentage", ErrValidation)
	}
	if pct.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: discount_percentage cannot be negative", ErrValidation)
	}
	if pct.GreaterThanOrEqual(minDiscountForApproval) {
		return decimal.Zero, fmt.Errorf("%w: discounts of %s%% or more require a discount approval",
			ErrValidation, minDiscountForApproval.StringFixed(0))
	}
	return pct, nil
}

func buildItems(reqs []QuotationItemRequest) ([]model.QuotationItem, decimal.Decimal, error) {
	items := make([]model.QuotationItem, 0, len(reqs))
	subtotal := decimal.Zero

	for _, r := range reqs {
		unitPrice, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("%w: invalid unit_price for item %q", ErrValidation, r.Description)
		}

		item := model.QuotationItem{
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   unitPrice,
			Amount:      unitPrice.Mul(decimal.NewFromInt(int64(r.Quantity))),
		}
		if r.CategoryID != "" {
			cid, parseErr := uuid.Parse(r.CategoryID)
			if parseErr != nil {
				return nil, decimal.Zero, fmt.Errorf("%w: invalid category_id for item %q", ErrValidation, r.Description)
			}
			item.CategoryID = &cid
		}

		subtotal = subtotal.Add(item.Amount)
		items = append(items, item)
	}

	return items, subtotal, nil
}

func quoteNumberPrefix() string {
	return "QT-" + time.Now().Format("20060102") + "-"
}

func (s *quotationService) writeAudit(ctx context.Context, userID, action, entityID, entityName string) {
	entry := &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
	}
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			entry.UserID = &parsed
		}
	}
	_ = s.audits.Log(ctx, entry)
}
