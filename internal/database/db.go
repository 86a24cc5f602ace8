package database

import (
	"quotecrm/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// rawMigrations are statements AutoMigrate cannot express. The partial
// unique index is the hard backstop for the "one pending approval per
// quotation" invariant: two concurrent requests may both observe an
// unlocked quotation, but only one insert can win.
var rawMigrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_approval_per_quotation
		ON discount_approvals (quotation_id)
		WHERE status = 'PENDING';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_default_country
		ON countries (is_default)
		WHERE is_default = true;`,
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.User{},
		&model.Country{},
		&model.TaxFramework{},
		&model.Jurisdiction{},
		&model.Category{},
		&model.TaxRate{},
		&model.TaxRateComponent{},
		&model.Client{},
		&model.Quotation{},
		&model.QuotationItem{},
		&model.DiscountApproval{},
		&model.CompanySettings{},
		&model.AuditLog{},
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to auto-migrate models")
	}

	for _, stmt := range rawMigrations {
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn().Err(err).Msg("raw migration failed")
		}
	}

	return db, nil
}
