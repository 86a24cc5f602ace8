package model

import (
	"time"

	"github.com/google/uuid"
)

// CompanySettings is a singleton row holding company-level configuration.
// HomeStateCode is the seller's state used for intra/inter-state splitting.
type CompanySettings struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyName   string     `gorm:"type:varchar(255)" json:"company_name"`
	HomeStateCode string     `gorm:"type:varchar(10)" json:"home_state_code"`
	CountryID     *uuid.UUID `gorm:"type:uuid" json:"country_id"`
	Country       *Country   `gorm:"foreignKey:CountryID" json:"country,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
