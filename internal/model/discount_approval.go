package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalStatus enum constants
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// ApprovalLevel enum constants
const (
	ApprovalLevelManager = "MANAGER"
	ApprovalLevelAdmin   = "ADMIN"
)

// DiscountApproval is one approval workflow instance for a quotation.
// Records are append-only: a rejected approval is never mutated by a
// resubmission, so the full history survives for the timeline.
// A partial unique index on (quotation_id) WHERE status = 'PENDING'
// enforces at most one pending approval per quotation (see database pkg).
type DiscountApproval struct {
	ID                   uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuotationID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"quotation_id"`
	Quotation            *Quotation      `gorm:"foreignKey:QuotationID" json:"quotation,omitempty"`
	Status               string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ApprovalLevel        string          `gorm:"type:varchar(20);not null" json:"approval_level"` // MANAGER, ADMIN
	RequestedDiscountPct decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"requested_discount_pct"`
	RequestedBy          uuid.UUID       `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester            *User           `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	ApproverID           *uuid.UUID      `gorm:"type:uuid;index" json:"approver_id"`
	Approver             *User           `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	RequestDate          time.Time       `gorm:"not null;index" json:"request_date"`
	ApprovalDate         *time.Time      `json:"approval_date"`
	RejectionDate        *time.Time      `json:"rejection_date"`
	EscalatedToAdmin     bool            `gorm:"default:false" json:"escalated_to_admin"`
	EscalatedAt          *time.Time      `json:"escalated_at"`
	Reason               string          `gorm:"type:text" json:"reason"`
	Comments             string          `gorm:"type:text" json:"comments"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Resolved reports whether the approval reached a terminal status.
func (a DiscountApproval) Resolved() bool {
	return a.Status == ApprovalApproved || a.Status == ApprovalRejected
}
