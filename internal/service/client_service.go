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

type CreateClientRequest struct {
	Name           string `json:"name" binding:"required"`
	CompanyName    string `json:"company_name"`
	Email          string `json:"email" binding:"omitempty,email"`
	Phone          string `json:"phone"`
	TaxCode        string `json:"tax_code"`
	CountryID      string `json:"country_id"`
	JurisdictionID string `json:"jurisdiction_id"`
	StateCode      string `json:"state_code"`
}

// --- Interface ---

type ClientService interface {
	Create(ctx context.Context, req CreateClientRequest, userID string) (*model.Client, error)
	Update(ctx context.Context, id string, req CreateClientRequest, userID string) (*model.Client, error)
	GetByID(ctx context.Context, id string) (*model.Client, error)
	List(ctx context.Context, page, limit int) ([]model.Client, int64, error)
	Delete(ctx context.Context, id string) error
}

type clientService struct {
	clients repository.ClientRepository
	audits  repository.AuditRepository
}

func NewClientService(clients repository.ClientRepository, audits repository.AuditRepository) ClientService {
	return &clientService{clients: clients, audits: audits}
}

// --- Implementation ---

func (s *clientService) Create(ctx context.Context, req CreateClientRequest, userID string) (*model.Client, error) {
	client := &model.Client{
		Name:        req.Name,
		CompanyName: req.CompanyName,
		Email:       req.Email,
		Phone:       req.Phone,
		TaxCode:     req.TaxCode,
		StateCode:   req.StateCode,
		IsActive:    true,
	}
	if err := applyClientRefs(client, req); err != nil {
		return nil, err
	}

	if err := s.clients.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.writeAudit(ctx, userID, model.ActionCreateClient, client.ID.String(), client.Name)
	return client, nil
}

func (s *clientService) Update(ctx context.Context, id string, req CreateClientRequest, userID string) (*model.Client, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid client id", ErrValidation)
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}

	client.Name = req.Name
	client.CompanyName = req.CompanyName
	client.Email = req.Email
	client.Phone = req.Phone
	client.TaxCode = req.TaxCode
	client.StateCode = req.StateCode
	client.Country = nil
	client.Jurisdiction = nil
	client.CountryID = nil
	client.JurisdictionID = nil
	if err := applyClientRefs(client, req); err != nil {
		return nil, err
	}

	if err := s.clients.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	s.writeAudit(ctx, userID, model.ActionUpdateClient, client.ID.String(), client.Name)
	return client, nil
}

func (s *clientService) GetByID(ctx context.Context, id string) (*model.Client, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid client id", ErrValidation)
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	return client, nil
}

func (s *clientService) List(ctx context.Context, page, limit int) ([]model.Client, int64, error) {
	return s.clients.List(ctx, page, limit)
}

func (s *clientService) Delete(ctx context.Context, id string) error {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid client id", ErrValidation)
	}

	if _, err := s.clients.FindByID(ctx, clientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClientNotFound
		}
		return fmt.Errorf("failed to fetch client: %w", err)
	}
	return s.clients.Delete(ctx, clientID)
}

// --- Helpers ---

func applyClientRefs(client *model.Client, req CreateClientRequest) error {
	if req.CountryID != "" {
		cid, err := uuid.Parse(req.CountryID)
		if err != nil {
			return fmt.Errorf("%w: invalid country_id", ErrValidation)
		}
		client.CountryID = &cid
	}
	if req.JurisdictionID != "" {
		jid, err := uuid.Parse(req.JurisdictionID)
		if err != nil {
			return fmt.Errorf("%w: invalid jurisdiction_id", ErrValidation)
		}
		client.JurisdictionID = &jid
	}
	return nil
}

func (s *clientService) writeAudit(ctx context.Context, userID, action, entityID, entityName string) {
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
