package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quotecrm/internal/cache"
	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type TaxComponentDTO struct {
	Name string `json:"name" binding:"required"`
	Rate string `json:"rate" binding:"required"` // Whole-number-scale percentage, e.g. "9.00"
}

type CreateTaxRateRequest struct {
	TaxFrameworkID string            `json:"tax_framework_id" binding:"required"`
	JurisdictionID string            `json:"jurisdiction_id"` // empty = country-level rate
	CategoryID     string            `json:"category_id"`     // empty = general rate
	Components     []TaxComponentDTO `json:"components" binding:"required,min=1,dive"`
	EffectiveFrom  string            `json:"effective_from" binding:"required"` // YYYY-MM-DD
	EffectiveTo    string            `json:"effective_to"`                      // YYYY-MM-DD, nullable
	IsExempt       bool              `json:"is_exempt"`
	IsZeroRated    bool              `json:"is_zero_rated"`
	Description    string            `json:"description"`
}

type CreateTaxFrameworkRequest struct {
	CountryID     string `json:"country_id" binding:"required"`
	FrameworkType string `json:"framework_type" binding:"required,oneof=GST VAT OTHER"`
}

type CreateCountryRequest struct {
	Name      string `json:"name" binding:"required"`
	Code      string `json:"code" binding:"required"` // ISO alpha-2
	IsDefault bool   `json:"is_default"`
}

type CreateJurisdictionRequest struct {
	Name      string `json:"name" binding:"required"`
	CountryID string `json:"country_id" binding:"required"`
	ParentID  string `json:"parent_id"`
	StateCode string `json:"state_code"`
}

type TaxComponentResponse struct {
	Name string `json:"name"`
	Rate string `json:"rate"`
}

type TaxRateResponse struct {
	ID             string                 `json:"id"`
	TaxFrameworkID string                 `json:"tax_framework_id"`
	JurisdictionID *string                `json:"jurisdiction_id"`
	CategoryID     *string                `json:"category_id"`
	Components     []TaxComponentResponse `json:"components"`
	EffectiveFrom  string                 `json:"effective_from"`
	EffectiveTo    *string                `json:"effective_to"`
	IsExempt       bool                   `json:"is_exempt"`
	IsZeroRated    bool                   `json:"is_zero_rated"`
	Description    string                 `json:"description"`
	CreatedAt      string                 `json:"created_at"`
}

// --- Interface ---

type TaxService interface {
	ListRates(ctx context.Context, page, limit int) ([]TaxRateResponse, int64, error)
	CreateRate(ctx context.Context, req CreateTaxRateRequest, userID string) (TaxRateResponse, error)
	UpdateRate(ctx context.Context, id string, req CreateTaxRateRequest, userID string) (TaxRateResponse, error)
	DeleteRate(ctx context.Context, id string, userID string) error
	CreateCountry(ctx context.Context, req CreateCountryRequest) (*model.Country, error)
	CreateFramework(ctx context.Context, req CreateTaxFrameworkRequest) (*model.TaxFramework, error)
	CreateJurisdiction(ctx context.Context, req CreateJurisdictionRequest) (*model.Jurisdiction, error)
	ListJurisdictions(ctx context.Context, countryID string) ([]model.Jurisdiction, error)
}

type taxService struct {
	taxes     repository.TaxRepository
	audits    repository.AuditRepository
	rateCache *cache.Cache // shared with the calculator; invalidated on writes
}

func NewTaxService(taxes repository.TaxRepository, audits repository.AuditRepository, rateCache *cache.Cache) TaxService {
	return &taxService{taxes: taxes, audits: audits, rateCache: rateCache}
}

// --- Implementation ---

func (s *taxService) ListRates(ctx context.Context, page, limit int) ([]TaxRateResponse, int64, error) {
	rates, total, err := s.taxes.ListRates(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch tax rates: %w", err)
	}

	res := make([]TaxRateResponse, 0, len(rates))
	for _, r := range rates {
		res = append(res, toTaxRateResponse(r))
	}
	return res, total, nil
}

func (s *taxService) CreateRate(ctx context.Context, req CreateTaxRateRequest, userID string) (TaxRateResponse, error) {
	rate, err := s.buildRate(req)
	if err != nil {
		return TaxRateResponse{}, err
	}

	if err := s.checkOverlap(ctx, rate, nil); err != nil {
		return TaxRateResponse{}, err
	}

	if err := s.taxes.CreateRate(ctx, rate); err != nil {
		return TaxRateResponse{}, fmt.Errorf("failed to create tax rate: %w", err)
	}

	s.invalidateCache()
	s.writeAuditLog(ctx, userID, model.ActionCreateTaxRate, rate.ID.String(), req)

	return toTaxRateResponse(*rate), nil
}

func (s *taxService) UpdateRate(ctx context.Context, id string, req CreateTaxRateRequest, userID string) (TaxRateResponse, error) {
	rateID, err := uuid.Parse(id)
	if err != nil {
		return TaxRateResponse{}, fmt.Errorf("%w: invalid tax rate id", ErrValidation)
	}

	existing, err := s.taxes.FindRateByID(ctx, rateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TaxRateResponse{}, fmt.Errorf("%w: tax rate", ErrValidation)
		}
		return TaxRateResponse{}, fmt.Errorf("failed to fetch tax rate: %w", err)
	}

	updated, err := s.buildRate(req)
	if err != nil {
		return TaxRateResponse{}, err
	}
	updated.ID = existing.ID
	for i := range updated.Components {
		updated.Components[i].TaxRateID = existing.ID
	}

	if err := s.checkOverlap(ctx, updated, &existing.ID); err != nil {
		return TaxRateResponse{}, err
	}

	if err := s.taxes.UpdateRate(ctx, updated); err != nil {
		return TaxRateResponse{}, fmt.Errorf("failed to update tax rate: %w", err)
	}

	s.invalidateCache()
	s.writeAuditLog(ctx, userID, model.ActionUpdateTaxRate, updated.ID.String(), req)

	return toTaxRateResponse(*updated), nil
}

func (s *taxService) DeleteRate(ctx context.Context, id string, userID string) error {
	rateID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid tax rate id", ErrValidation)
	}

	if _, err := s.taxes.FindRateByID(ctx, rateID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: tax rate", ErrValidation)
		}
		return fmt.Errorf("failed to fetch tax rate: %w", err)
	}

	if err := s.taxes.DeleteRate(ctx, rateID); err != nil {
		return fmt.Errorf("failed to delete tax rate: %w", err)
	}

	s.invalidateCache()
	s.writeAuditLog(ctx, userID, model.ActionDeleteTaxRate, id, map[string]string{"deleted_id": id})
	return nil
}

func (s *taxService) CreateCountry(ctx context.Context, req CreateCountryRequest) (*model.Country, error) {
	country := &model.Country{
		Name:      req.Name,
		Code:      req.Code,
		IsDefault: req.IsDefault,
	}
	if err := s.taxes.CreateCountry(ctx, country); err != nil {
		return nil, fmt.Errorf("failed to create country: %w", err)
	}
	return country, nil
}

func (s *taxService) CreateFramework(ctx context.Context, req CreateTaxFrameworkRequest) (*model.TaxFramework, error) {
	countryID, err := uuid.Parse(req.CountryID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid country_id", ErrValidation)
	}

	fw := &model.TaxFramework{
		CountryID:     countryID,
		FrameworkType: req.FrameworkType,
		IsActive:      true,
	}
	if err := s.taxes.CreateFramework(ctx, fw); err != nil {
		return nil, fmt.Errorf("failed to create tax framework: %w", err)
	}
	return fw, nil
}

func (s *taxService) CreateJurisdiction(ctx context.Context, req CreateJurisdictionRequest) (*model.Jurisdiction, error) {
	countryID, err := uuid.Parse(req.CountryID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid country_id", ErrValidation)
	}

	j := &model.Jurisdiction{
		Name:      req.Name,
		CountryID: countryID,
		StateCode: req.StateCode,
		IsActive:  true,
	}
	if req.ParentID != "" {
		parentID, parseErr := uuid.Parse(req.ParentID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid parent_id", ErrValidation)
		}
		j.ParentID = &parentID
	}

	if err := s.taxes.CreateJurisdiction(ctx, j); err != nil {
		return nil, fmt.Errorf("failed to create jurisdiction: %w", err)
	}
	return j, nil
}

func (s *taxService) ListJurisdictions(ctx context.Context, countryID string) ([]model.Jurisdiction, error) {
	cid, err := uuid.Parse(countryID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid country_id", ErrValidation)
	}
	return s.taxes.ListJurisdictions(ctx, cid)
}

// --- Helpers ---

func (s *taxService) buildRate(req CreateTaxRateRequest) (*model.TaxRate, error) {
	frameworkID, err := uuid.Parse(req.TaxFrameworkID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tax_framework_id", ErrValidation)
	}

	rate := &model.TaxRate{
		TaxFrameworkID: frameworkID,
		IsExempt:       req.IsExempt,
		IsZeroRated:    req.IsZeroRated,
		Description:    req.Description,
	}

	if req.JurisdictionID != "" {
		jid, parseErr := uuid.Parse(req.JurisdictionID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid jurisdiction_id", ErrValidation)
		}
		rate.JurisdictionID = &jid
	}
	if req.CategoryID != "" {
		cid, parseErr := uuid.Parse(req.CategoryID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid category_id", ErrValidation)
		}
		rate.CategoryID = &cid
	}

	rate.EffectiveFrom, err = time.Parse("2006-01-02", req.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid effective_from date format (expected YYYY-MM-DD)", ErrValidation)
	}
	if req.EffectiveTo != "" {
		to, parseErr := time.Parse("2006-01-02", req.EffectiveTo)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid effective_to date format (expected YYYY-MM-DD)", ErrValidation)
		}
		rate.EffectiveTo = &to
	}

	for _, c := range req.Components {
		pct, parseErr := decimal.NewFromString(c.Rate)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid rate value for component %s", ErrValidation, c.Name)
		}
		rate.Components = append(rate.Components, model.TaxRateComponent{
			Name: c.Name,
			Rate: pct,
		})
	}

	return rate, nil
}

// checkOverlap rejects a rate whose effective range collides with an existing
// rate for the same (jurisdiction, framework, category) tuple.
func (s *taxService) checkOverlap(ctx context.Context, rate *model.TaxRate, excludeID *uuid.UUID) error {
	count, err := s.taxes.CountOverlappingRates(ctx, rate.JurisdictionID, rate.TaxFrameworkID, rate.CategoryID, rate.EffectiveFrom, rate.EffectiveTo, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check overlap: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: a tax rate already exists with overlapping effective dates for this scope", ErrValidation)
	}
	return nil
}

func (s *taxService) invalidateCache() {
	if s.rateCache != nil {
		s.rateCache.Clear()
	}
}

func (s *taxService) writeAuditLog(ctx context.Context, userID, action, entityID string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)

	entry := &model.AuditLog{
		Action:   action,
		EntityID: entityID,
		Details:  string(detailsJSON),
	}
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			entry.UserID = &parsed
		}
	}

	// Best-effort audit log — don't fail the operation if logging fails
	if err := s.audits.Log(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}

func toTaxRateResponse(r model.TaxRate) TaxRateResponse {
	resp := TaxRateResponse{
		ID:             r.ID.String(),
		TaxFrameworkID: r.TaxFrameworkID.String(),
		EffectiveFrom:  r.EffectiveFrom.Format("2006-01-02"),
		IsExempt:       r.IsExempt,
		IsZeroRated:    r.IsZeroRated,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		Components:     make([]TaxComponentResponse, 0, len(r.Components)),
	}
	if r.JurisdictionID != nil {
		s := r.JurisdictionID.String()
		resp.JurisdictionID = &s
	}
	if r.CategoryID != nil {
		s := r.CategoryID.String()
		resp.CategoryID = &s
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.Format("2006-01-02")
		resp.EffectiveTo = &s
	}
	for _, c := range r.Components {
		resp.Components = append(resp.Components, TaxComponentResponse{
			Name: c.Name,
			Rate: c.Rate.StringFixed(2),
		})
	}
	return resp
}
