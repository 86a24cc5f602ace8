package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TaxFrameworkType enum constants
const (
	FrameworkGST   = "GST"
	FrameworkVAT   = "VAT"
	FrameworkOther = "OTHER"
)

// Country is a top-level taxing territory. At most one country is flagged
// as the system-wide default.
type Country struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Code      string    `gorm:"type:varchar(10);uniqueIndex;not null" json:"code"` // ISO alpha-2, e.g. "IN"
	IsDefault bool      `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaxFramework is a country-level tax regime (GST, VAT, ...).
// Business invariant: one active framework per country at a time.
type TaxFramework struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CountryID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"country_id"`
	Country       *Country       `gorm:"foreignKey:CountryID" json:"country,omitempty"`
	FrameworkType string         `gorm:"type:varchar(20);not null" json:"framework_type"` // GST, VAT, OTHER
	IsActive      bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Jurisdiction is a sub-national taxing region (state/province), optionally
// nested under a parent jurisdiction.
type Jurisdiction struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	CountryID uuid.UUID  `gorm:"type:uuid;not null;index" json:"country_id"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`
	StateCode string     `gorm:"type:varchar(10)" json:"state_code"` // e.g. "27" for Maharashtra
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Category classifies products/services for rate selection (e.g. HSN group).
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Code      string    `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaxRate stores tax components with temporal validity, scoped by
// jurisdiction (nullable = country level) and category (nullable = general).
type TaxRate struct {
	ID             uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JurisdictionID *uuid.UUID         `gorm:"type:uuid;index" json:"jurisdiction_id"`
	TaxFrameworkID uuid.UUID          `gorm:"type:uuid;not null;index" json:"tax_framework_id"`
	CategoryID     *uuid.UUID         `gorm:"type:uuid;index" json:"category_id"`
	EffectiveFrom  time.Time          `gorm:"type:date;not null;index" json:"effective_from"`
	EffectiveTo    *time.Time         `gorm:"type:date;index" json:"effective_to"` // nullable = open-ended
	IsExempt       bool               `gorm:"default:false" json:"is_exempt"`
	IsZeroRated    bool               `gorm:"default:false" json:"is_zero_rated"`
	Description    string             `gorm:"type:text" json:"description"`
	Components     []TaxRateComponent `gorm:"foreignKey:TaxRateID;constraint:OnDelete:CASCADE" json:"components"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// TaxRateComponent is one named component of a rate, e.g. "CGST": 9.00.
// Rates are whole-number-scale percentages (9.00 means 9%).
type TaxRateComponent struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TaxRateID uuid.UUID       `gorm:"type:uuid;not null;index" json:"tax_rate_id"`
	Name      string          `gorm:"type:varchar(50);not null" json:"name"`
	Rate      decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`
	CreatedAt time.Time       `json:"created_at"`
}

// TotalRate sums all component percentages.
func (r TaxRate) TotalRate() decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Components {
		total = total.Add(c.Rate)
	}
	return total
}
