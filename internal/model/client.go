package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client represents a CRM customer that quotations are issued to.
// StateCode drives the GST intra-state vs inter-state determination.
type Client struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	CompanyName    string         `gorm:"type:varchar(255)" json:"company_name"`
	Email          string         `gorm:"type:varchar(255)" json:"email"`
	Phone          string         `gorm:"type:varchar(50)" json:"phone"`
	TaxCode        string         `gorm:"type:varchar(50)" json:"tax_code"` // GSTIN / VAT number
	CountryID      *uuid.UUID     `gorm:"type:uuid;index" json:"country_id"`
	Country        *Country       `gorm:"foreignKey:CountryID" json:"country,omitempty"`
	JurisdictionID *uuid.UUID     `gorm:"type:uuid;index" json:"jurisdiction_id"`
	Jurisdiction   *Jurisdiction  `gorm:"foreignKey:JurisdictionID" json:"jurisdiction,omitempty"`
	StateCode      string         `gorm:"type:varchar(10)" json:"state_code"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
