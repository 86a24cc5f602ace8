package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quotecrm/internal/cache"
	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GST component names synthesized from the stored total rate.
const (
	ComponentCGST = "CGST"
	ComponentSGST = "SGST"
	ComponentIGST = "IGST"
)

// Resolved rates are cached for up to an hour. Rate changes are rare
// administrative events, so bounded staleness is acceptable.
const rateCacheTTL = time.Hour

// --- DTOs ---

type TaxLineItemInput struct {
	LineItemID string          `json:"line_item_id"`
	CategoryID *uuid.UUID      `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type CalculateTaxInput struct {
	ClientID        uuid.UUID
	LineItems       []TaxLineItemInput
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	CalculationDate time.Time
	CountryID       *uuid.UUID // overrides the client's country when set
}

type TaxComponentBreakdown struct {
	Component string          `json:"component"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
}

type LineItemTax struct {
	LineItemID string                  `json:"line_item_id"`
	TaxAmount  decimal.Decimal         `json:"tax_amount"`
	Components []TaxComponentBreakdown `json:"component_breakdown"`
}

type TaxCalculationResult struct {
	Subtotal       decimal.Decimal         `json:"subtotal"`
	DiscountAmount decimal.Decimal         `json:"discount_amount"`
	TaxableAmount  decimal.Decimal         `json:"taxable_amount"`
	TotalTax       decimal.Decimal         `json:"total_tax"`
	TotalAmount    decimal.Decimal         `json:"total_amount"`
	TaxBreakdown   []TaxComponentBreakdown `json:"tax_breakdown"`
	LineItems      []LineItemTax           `json:"line_item_breakdown"`
}

// --- Interface ---

type TaxCalculator interface {
	CalculateTax(ctx context.Context, input CalculateTaxInput) (*TaxCalculationResult, error)
}

type taxCalculator struct {
	clients   repository.ClientRepository
	taxes     repository.TaxRepository
	settings  repository.SettingsRepository
	rateCache *cache.Cache // optional; nil disables caching
}

func NewTaxCalculator(clients repository.ClientRepository, taxes repository.TaxRepository, settings repository.SettingsRepository, rateCache *cache.Cache) TaxCalculator {
	return &taxCalculator{
		clients:   clients,
		taxes:     taxes,
		settings:  settings,
		rateCache: rateCache,
	}
}

// --- Implementation ---

// CalculateTax computes the per-line and aggregate tax breakdown for a
// client's line items at a point in time. Rate-lookup misses degrade to
// zero tax for the affected line; they are logged, never fatal.
func (s *taxCalculator) CalculateTax(ctx context.Context, input CalculateTaxInput) (*TaxCalculationResult, error) {
	client, err := s.clients.FindByID(ctx, input.ClientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}

	countryID, err := s.resolveCountry(ctx, input.CountryID, client)
	if err != nil {
		return nil, err
	}

	framework, err := s.taxes.FindActiveFramework(ctx, countryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: country %s", ErrNoTaxFramework, countryID)
		}
		return nil, fmt.Errorf("failed to fetch tax framework: %w", err)
	}

	intraState := false
	if framework.FrameworkType == model.FrameworkGST {
		intraState = s.isIntraState(ctx, client)
	}

	date := input.CalculationDate
	if date.IsZero() {
		date = time.Now()
	}

	result := &TaxCalculationResult{
		Subtotal:       input.Subtotal,
		DiscountAmount: input.DiscountAmount,
		TaxableAmount:  input.Subtotal.Sub(input.DiscountAmount),
		TotalTax:       decimal.Zero,
		TaxBreakdown:   []TaxComponentBreakdown{},
		LineItems:      make([]LineItemTax, 0, len(input.LineItems)),
	}

	// Aggregate breakdown keeps the first-seen rate per component name and
	// sums amounts. With mixed per-line rates under one name the displayed
	// rate is only indicative; amounts are always exact.
	aggIndex := map[string]int{}

	for _, item := range input.LineItems {
		rate, err := s.resolveRate(ctx, client.JurisdictionID, framework.ID, item.CategoryID, date)
		if err != nil {
			return nil, err
		}

		lineTax := LineItemTax{
			LineItemID: item.LineItemID,
			TaxAmount:  decimal.Zero,
			Components: []TaxComponentBreakdown{},
		}

		if rate == nil {
			log.Warn().
				Str("line_item", item.LineItemID).
				Str("framework", framework.FrameworkType).
				Time("date", date).
				Msg("no tax rate found, treating line item as untaxed")
		} else if !rate.IsExempt && !rate.IsZeroRated {
			lineTax.Components = splitComponents(rate, framework.FrameworkType, intraState, item.Amount)
			for _, comp := range lineTax.Components {
				lineTax.TaxAmount = lineTax.TaxAmount.Add(comp.Amount)
				if idx, ok := aggIndex[comp.Component]; ok {
					result.TaxBreakdown[idx].Amount = result.TaxBreakdown[idx].Amount.Add(comp.Amount)
				} else {
					aggIndex[comp.Component] = len(result.TaxBreakdown)
					result.TaxBreakdown = append(result.TaxBreakdown, comp)
				}
			}
		}

		result.TotalTax = result.TotalTax.Add(lineTax.TaxAmount)
		result.LineItems = append(result.LineItems, lineTax)
	}

	result.TotalAmount = result.TaxableAmount.Add(result.TotalTax)
	return result, nil
}

// resolveCountry applies the override > client country > system default chain.
func (s *taxCalculator) resolveCountry(ctx context.Context, override *uuid.UUID, client *model.Client) (uuid.UUID, error) {
	if override != nil {
		country, err := s.taxes.FindCountry(ctx, *override)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return uuid.Nil, ErrCountryNotFound
			}
			return uuid.Nil, fmt.Errorf("failed to fetch country: %w", err)
		}
		return country.ID, nil
	}

	if client.CountryID != nil {
		return *client.CountryID, nil
	}

	country, err := s.taxes.FindDefaultCountry(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrNoDefaultCountry
		}
		return uuid.Nil, fmt.Errorf("failed to fetch default country: %w", err)
	}
	return country.ID, nil
}

// isIntraState compares the client's state code with the company home state,
// case-insensitive and trimmed. Missing settings fall back to inter-state.
func (s *taxCalculator) isIntraState(ctx context.Context, client *model.Client) bool {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("company settings unavailable, assuming inter-state supply")
		return false
	}

	home := strings.TrimSpace(settings.HomeStateCode)
	clientState := strings.TrimSpace(client.StateCode)
	if home == "" || clientState == "" {
		return false
	}
	return strings.EqualFold(home, clientState)
}

// resolveRate walks the strict fallback chain:
//
//	(a) (jurisdiction, framework, category)
//	(b) (jurisdiction, framework, no category)
//	(c) repeat (a)+(b) against the parent jurisdiction
//	(d) (no jurisdiction, framework, category)
//	(e) (no jurisdiction, framework, no category)
//
// First match wins. Returns nil when no rate applies.
func (s *taxCalculator) resolveRate(ctx context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, date time.Time) (*model.TaxRate, error) {
	visited := map[uuid.UUID]bool{}

	current := jurisdictionID
	for current != nil {
		if visited[*current] {
			log.Warn().Str("jurisdiction", current.String()).Msg("jurisdiction hierarchy cycle detected, stopping walk")
			break
		}
		visited[*current] = true

		if categoryID != nil {
			rate, err := s.lookupRate(ctx, current, frameworkID, categoryID, date)
			if err != nil || rate != nil {
				return rate, err
			}
		}
		rate, err := s.lookupRate(ctx, current, frameworkID, nil, date)
		if err != nil || rate != nil {
			return rate, err
		}

		jurisdiction, err := s.taxes.FindJurisdiction(ctx, *current)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, fmt.Errorf("failed to fetch jurisdiction: %w", err)
		}
		current = jurisdiction.ParentID
	}

	if categoryID != nil {
		rate, err := s.lookupRate(ctx, nil, frameworkID, categoryID, date)
		if err != nil || rate != nil {
			return rate, err
		}
	}
	return s.lookupRate(ctx, nil, frameworkID, nil, date)
}

// lookupRate is a single exact-dimension lookup, cached per scope+date.
// Misses are cached too so repeated untaxed lookups stay cheap.
func (s *taxCalculator) lookupRate(ctx context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, date time.Time) (*model.TaxRate, error) {
	key := rateCacheKey(jurisdictionID, frameworkID, categoryID, date)
	if s.rateCache != nil {
		if cached, ok := s.rateCache.Get(key); ok {
			rate, _ := cached.(*model.TaxRate)
			return rate, nil
		}
	}

	rate, err := s.taxes.FindRate(ctx, jurisdictionID, frameworkID, categoryID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tax rate: %w", err)
	}

	if s.rateCache != nil {
		s.rateCache.Set(key, rate, rateCacheTTL)
	}
	return rate, nil
}

func rateCacheKey(jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, date time.Time) string {
	jur := "-"
	if jurisdictionID != nil {
		jur = jurisdictionID.String()
	}
	cat := "-"
	if categoryID != nil {
		cat = categoryID.String()
	}
	return "rate:" + jur + ":" + frameworkID.String() + ":" + cat + ":" + date.Format("2006-01-02")
}

// splitComponents turns a stored rate into the billed components.
// GST synthesizes CGST/SGST (intra-state, even split) or IGST (inter-state)
// from the summed component rates; other frameworks bill the stored
// components verbatim.
func splitComponents(rate *model.TaxRate, frameworkType string, intraState bool, amount decimal.Decimal) []TaxComponentBreakdown {
	hundred := decimal.NewFromInt(100)

	if frameworkType == model.FrameworkGST {
		total := rate.TotalRate()
		if intraState {
			half := total.Div(decimal.NewFromInt(2))
			halfAmount := amount.Mul(half).Div(hundred)
			return []TaxComponentBreakdown{
				{Component: ComponentCGST, Rate: half, Amount: halfAmount},
				{Component: ComponentSGST, Rate: half, Amount: halfAmount},
			}
		}
		return []TaxComponentBreakdown{
			{Component: ComponentIGST, Rate: total, Amount: amount.Mul(total).Div(hundred)},
		}
	}

	components := make([]TaxComponentBreakdown, 0, len(rate.Components))
	for _, c := range rate.Components {
		components = append(components, TaxComponentBreakdown{
			Component: c.Name,
			Rate:      c.Rate,
			Amount:    amount.Mul(c.Rate).Div(hundred),
		})
	}
	return components
}
