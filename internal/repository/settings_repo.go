package repository

import (
	"context"

	"quotecrm/internal/model"

	"gorm.io/gorm"
)

// SettingsRepository exposes the singleton company settings row.
type SettingsRepository interface {
	Get(ctx context.Context) (*model.CompanySettings, error)
	Save(ctx context.Context, settings *model.CompanySettings) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*model.CompanySettings, error) {
	var settings model.CompanySettings
	if err := GetDB(ctx, r.db).Order("created_at").First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *model.CompanySettings) error {
	return GetDB(ctx, r.db).Save(settings).Error
}
