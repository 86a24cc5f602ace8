package repository

import (
	"context"
	"errors"
	"time"

	"quotecrm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaxRepository is the data-access surface for the tax domain: countries,
// frameworks, jurisdictions and rate records.
type TaxRepository interface {
	FindCountry(ctx context.Context, id uuid.UUID) (*model.Country, error)
	FindDefaultCountry(ctx context.Context) (*model.Country, error)
	FindActiveFramework(ctx context.Context, countryID uuid.UUID) (*model.TaxFramework, error)
	FindJurisdiction(ctx context.Context, id uuid.UUID) (*model.Jurisdiction, error)
	ListJurisdictions(ctx context.Context, countryID uuid.UUID) ([]model.Jurisdiction, error)

	// FindRate resolves the single rate matching the exact scope dimensions
	// with date-range containment. A miss returns (nil, nil) — untaxed
	// scopes are legitimate.
	FindRate(ctx context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, date time.Time) (*model.TaxRate, error)

	CreateRate(ctx context.Context, rate *model.TaxRate) error
	UpdateRate(ctx context.Context, rate *model.TaxRate) error
	DeleteRate(ctx context.Context, id uuid.UUID) error
	FindRateByID(ctx context.Context, id uuid.UUID) (*model.TaxRate, error)
	ListRates(ctx context.Context, page, limit int) ([]model.TaxRate, int64, error)
	CountOverlappingRates(ctx context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error)

	CreateFramework(ctx context.Context, fw *model.TaxFramework) error
	CreateJurisdiction(ctx context.Context, j *model.Jurisdiction) error
	CreateCountry(ctx context.Context, c *model.Country) error
}

type taxRepository struct {
	db *gorm.DB
}

func NewTaxRepository(db *gorm.DB) TaxRepository {
	return &taxRepository{db: db}
}

func (r *taxRepository) FindCountry(ctx context.Context, id uuid.UUID) (*model.Country, error) {
	var country model.Country
	if err := GetDB(ctx, r.db).First(&country, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &country, nil
}

func (r *taxRepository) FindDefaultCountry(ctx context.Context) (*model.Country, error) {
	var country model.Country
	if err := GetDB(ctx, r.db).First(&country, "is_default = ?", true).Error; err != nil {
		return nil, err
	}
	return &country, nil
}

func (r *taxRepository) FindActiveFramework(ctx context.Context, countryID uuid.UUID) (*model.TaxFramework, error) {
	var fw model.TaxFramework
	if err := GetDB(ctx, r.db).
		Where("country_id = ? AND is_active = ?", countryID, true).
		Order("created_at DESC").
		First(&fw).Error; err != nil {
		return nil, err
	}
	return &fw, nil
}

func (r *taxRepository) FindJurisdiction(ctx context.Context, id uuid.UUID) (*model.Jurisdiction, error) {
	var j model.Jurisdiction
	if err := GetDB(ctx, r.db).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *taxRepository) ListJurisdictions(ctx context.Context, countryID uuid.UUID) ([]model.Jurisdiction, error) {
	var list []model.Jurisdiction
	if err := GetDB(ctx, r.db).Where("country_id = ?", countryID).Order("name").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *taxRepository) FindRate(ctx context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, date time.Time) (*model.TaxRate, error) {
	query := GetDB(ctx, r.db).
		Preload("Components").
		Where("tax_framework_id = ?", frameworkID).
		Where("effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", date, date)

	if jurisdictionID != nil {
		query = query.Where("jurisdiction_id = ?", *jurisdictionID)
	} else {
		query = query.Where("jurisdiction_id IS NULL")
	}
	if categoryID != nil {
		query = query.Where("category_id = ?", *categoryID)
	} else {
		query = query.Where("category_id IS NULL")
	}

	var rate model.TaxRate
	if err := query.Order("effective_from DESC").First(&rate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // No rate for this scope — not an error
		}
		return nil, err
	}
	return &rate, nil
}

func (r *taxRepository) CreateRate(ctx context.Context, rate *model.TaxRate) error {
	return GetDB(ctx, r.db).Create(rate).Error
}

func (r *taxRepository) UpdateRate(ctx context.Context, rate *model.TaxRate) error {
	return GetDB(ctx, r.db).Save(rate).Error
}

func (r *taxRepository) DeleteRate(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TaxRate{}).Error
}

func (r *taxRepository) FindRateByID(ctx context.Context, id uuid.UUID) (*model.TaxRate, error) {
	var rate model.TaxRate
	if err := GetDB(ctx, r.db).Preload("Components").First(&rate, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *taxRepository) ListRates(ctx context.Context, page, limit int) ([]model.TaxRate, int64, error) {
	var rates []model.TaxRate
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.TaxRate{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Components").Order("effective_from DESC").Offset(offset).Limit(limit).Find(&rates).Error; err != nil {
		return nil, 0, err
	}

	return rates, total, nil
}

func (r *taxRepository) CountOverlappingRates(ctx context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error) {
	endOfTime := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	upper := endOfTime
	if to != nil {
		upper = *to
	}

	query := GetDB(ctx, r.db).Model(&model.TaxRate{}).
		Where("tax_framework_id = ?", frameworkID).
		Where("effective_from <= ?", upper).
		Where("(effective_to IS NULL OR effective_to >= ?)", from)

	if jurisdictionID != nil {
		query = query.Where("jurisdiction_id = ?", *jurisdictionID)
	} else {
		query = query.Where("jurisdiction_id IS NULL")
	}
	if categoryID != nil {
		query = query.Where("category_id = ?", *categoryID)
	} else {
		query = query.Where("category_id IS NULL")
	}
	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *taxRepository) CreateFramework(ctx context.Context, fw *model.TaxFramework) error {
	return GetDB(ctx, r.db).Create(fw).Error
}

func (r *taxRepository) CreateJurisdiction(ctx context.Context, j *model.Jurisdiction) error {
	return GetDB(ctx, r.db).Create(j).Error
}

func (r *taxRepository) CreateCountry(ctx context.Context, c *model.Country) error {
	return GetDB(ctx, r.db).Create(c).Error
}
