package repository

import (
	"context"
	"errors"
	"time"

	"quotecrm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MetricsFilter bounds the approval records considered by the metrics
// aggregator. Nil fields mean "no bound".
type MetricsFilter struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	ApproverID *uuid.UUID
}

type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.DiscountApproval) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.DiscountApproval, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.DiscountApproval, error)
	// FindPendingByQuotation returns (nil, nil) when the quotation has no
	// pending approval.
	FindPendingByQuotation(ctx context.Context, quotationID uuid.UUID) (*model.DiscountApproval, error)
	ListByQuotation(ctx context.Context, quotationID uuid.UUID) ([]model.DiscountApproval, error)
	List(ctx context.Context, status string, page, limit int) ([]model.DiscountApproval, int64, error)
	ListForMetrics(ctx context.Context, filter MetricsFilter) ([]model.DiscountApproval, error)
	Update(ctx context.Context, approval *model.DiscountApproval) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.DiscountApproval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DiscountApproval, error) {
	var approval model.DiscountApproval
	if err := GetDB(ctx, r.db).First(&approval, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

func (r *approvalRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.DiscountApproval, error) {
	var approval model.DiscountApproval
	if err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Approver").
		Preload("Quotation").
		First(&approval, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

func (r *approvalRepository) FindPendingByQuotation(ctx context.Context, quotationID uuid.UUID) (*model.DiscountApproval, error) {
	var approval model.DiscountApproval
	err := GetDB(ctx, r.db).
		Where("quotation_id = ? AND status = ?", quotationID, model.ApprovalPending).
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &approval, nil
}

func (r *approvalRepository) ListByQuotation(ctx context.Context, quotationID uuid.UUID) ([]model.DiscountApproval, error) {
	var approvals []model.DiscountApproval
	if err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Approver").
		Where("quotation_id = ?", quotationID).
		Order("request_date DESC").
		Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *approvalRepository) List(ctx context.Context, status string, page, limit int) ([]model.DiscountApproval, int64, error) {
	var approvals []model.DiscountApproval
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.DiscountApproval{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("Requester").Preload("Approver")
	if status != "" {
		fetchQuery = fetchQuery.Where("status = ?", status)
	}
	if err := fetchQuery.Order("request_date DESC").Offset(offset).Limit(limit).Find(&approvals).Error; err != nil {
		return nil, 0, err
	}

	return approvals, total, nil
}

func (r *approvalRepository) ListForMetrics(ctx context.Context, filter MetricsFilter) ([]model.DiscountApproval, error) {
	query := GetDB(ctx, r.db).Model(&model.DiscountApproval{})
	if filter.DateFrom != nil {
		query = query.Where("request_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("request_date <= ?", *filter.DateTo)
	}
	if filter.ApproverID != nil {
		query = query.Where("approver_id = ?", *filter.ApproverID)
	}

	var approvals []model.DiscountApproval
	if err := query.Order("request_date").Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *approvalRepository) Update(ctx context.Context, approval *model.DiscountApproval) error {
	return GetDB(ctx, r.db).Save(approval).Error
}
