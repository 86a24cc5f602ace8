package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuotationStatus enum constants
const (
	QuotationStatusDraft    = "DRAFT"
	QuotationStatusSent     = "SENT"
	QuotationStatusAccepted = "ACCEPTED"
	QuotationStatusDeclined = "DECLINED"
)

// Quotation is a priced offer to a client. While a discount approval is
// pending, IsPendingApproval acts as an advisory lock: edits must be refused
// until the approval is resolved.
type Quotation struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteNumber        string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"quote_number"`
	ClientID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client             *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Status             string          `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"discount_amount"`
	TaxAmount          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	IsPendingApproval  bool            `gorm:"default:false;index" json:"is_pending_approval"`
	PendingApprovalID  *uuid.UUID      `gorm:"type:uuid" json:"pending_approval_id"`
	Note               string          `gorm:"type:text" json:"note"`
	Items              []QuotationItem `gorm:"foreignKey:QuotationID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedBy          *uuid.UUID      `gorm:"type:uuid;index" json:"created_by"`
	Creator            *User           `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`
}

// QuotationItem is a single priced line on a quotation.
type QuotationItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuotationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"quotation_id"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category    *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
