package repository

import (
	"context"

	"quotecrm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuotationRepository interface {
	Create(ctx context.Context, quotation *model.Quotation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	// FindByIDForUpdate locks the quotation row for the duration of the
	// surrounding transaction. Callers must run inside RunInTx.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	Update(ctx context.Context, quotation *model.Quotation) error
	SetApprovalLock(ctx context.Context, id uuid.UUID, pending bool, approvalID *uuid.UUID) error
	ReplaceItems(ctx context.Context, quotationID uuid.UUID, items []model.QuotationItem) error
	List(ctx context.Context, clientID *uuid.UUID, page, limit int) ([]model.Quotation, int64, error)
	// NextQuoteNumber returns the next sequence number for a quote-number
	// prefix, serialized with an advisory lock to avoid duplicates.
	NextQuoteNumber(ctx context.Context, prefix string) (int64, error)
}

type quotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) QuotationRepository {
	return &quotationRepository{db: db}
}

func (r *quotationRepository) Create(ctx context.Context, quotation *model.Quotation) error {
	return GetDB(ctx, r.db).Create(quotation).Error
}

func (r *quotationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var q model.Quotation
	if err := GetDB(ctx, r.db).First(&q, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotationRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var q model.Quotation
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Client").
		First(&q, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var q model.Quotation
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&q, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotationRepository) Update(ctx context.Context, quotation *model.Quotation) error {
	return GetDB(ctx, r.db).Save(quotation).Error
}

func (r *quotationRepository) SetApprovalLock(ctx context.Context, id uuid.UUID, pending bool, approvalID *uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Quotation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_pending_approval": pending,
			"pending_approval_id": approvalID,
		}).Error
}

func (r *quotationRepository) ReplaceItems(ctx context.Context, quotationID uuid.UUID, items []model.QuotationItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("quotation_id = ?", quotationID).Delete(&model.QuotationItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].QuotationID = quotationID
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *quotationRepository) NextQuoteNumber(ctx context.Context, prefix string) (int64, error) {
	db := GetDB(ctx, r.db)

	// Advisory lock prevents concurrent duplicate quote numbers
	db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix)

	var count int64
	if err := db.Model(&model.Quotation{}).
		Where("quote_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (r *quotationRepository) List(ctx context.Context, clientID *uuid.UUID, page, limit int) ([]model.Quotation, int64, error) {
	var quotations []model.Quotation
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Quotation{})
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("Items").Preload("Client")
	if clientID != nil {
		fetchQuery = fetchQuery.Where("client_id = ?", *clientID)
	}
	if err := fetchQuery.
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&quotations).Error; err != nil {
		return nil, 0, err
	}

	return quotations, total, nil
}
