package service

import (
	"context"
	"errors"
	"fmt"

	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type UpdateSettingsRequest struct {
	CompanyName   string `json:"company_name"`
	HomeStateCode string `json:"home_state_code"`
	CountryID     string `json:"country_id"`
}

// --- Interface ---

type SettingsService interface {
	Get(ctx context.Context) (*model.CompanySettings, error)
	Update(ctx context.Context, req UpdateSettingsRequest, userID string) (*model.CompanySettings, error)
}

type settingsService struct {
	settings repository.SettingsRepository
	audits   repository.AuditRepository
}

func NewSettingsService(settings repository.SettingsRepository, audits repository.AuditRepository) SettingsService {
	return &settingsService{settings: settings, audits: audits}
}

// --- Implementation ---

func (s *settingsService) Get(ctx context.Context) (*model.CompanySettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No row yet is not an error; return an empty settings object
			return &model.CompanySettings{}, nil
		}
		return nil, fmt.Errorf("failed to fetch company settings: %w", err)
	}
	return settings, nil
}

// Update upserts the singleton settings row.
func (s *settingsService) Update(ctx context.Context, req UpdateSettingsRequest, userID string) (*model.CompanySettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to fetch company settings: %w", err)
		}
		settings = &model.CompanySettings{}
	}

	settings.CompanyName = req.CompanyName
	settings.HomeStateCode = req.HomeStateCode
	settings.Country = nil
	settings.CountryID = nil
	if req.CountryID != "" {
		cid, parseErr := uuid.Parse(req.CountryID)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid country_id", ErrValidation)
		}
		settings.CountryID = &cid
	}

	if err := s.settings.Save(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save company settings: %w", err)
	}

	entry := &model.AuditLog{
		Action:     "UPDATE_COMPANY_SETTINGS",
		EntityID:   settings.ID.String(),
		EntityName: settings.CompanyName,
	}
	if userID != "" {
		if parsed, parseErr := uuid.Parse(userID); parseErr == nil {
			entry.UserID = &parsed
		}
	}
	_ = s.audits.Log(ctx, entry)

	return settings, nil
}
