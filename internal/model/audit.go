package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateClient    = "CREATE_CLIENT"
	ActionUpdateClient    = "UPDATE_CLIENT"
	ActionCreateQuotation = "CREATE_QUOTATION"
	ActionUpdateQuotation = "UPDATE_QUOTATION"
	ActionCreateTaxRate   = "CREATE_TAX_RATE"
	ActionUpdateTaxRate   = "UPDATE_TAX_RATE"
	ActionDeleteTaxRate   = "DELETE_TAX_RATE"

	// Discount approval workflow actions
	ActionRequestDiscountApproval = "REQUEST_DISCOUNT_APPROVAL"
	ActionApproveDiscount         = "APPROVE_DISCOUNT"
	ActionRejectDiscount          = "REJECT_DISCOUNT"
	ActionEscalateDiscount        = "ESCALATE_DISCOUNT"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated bot
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
