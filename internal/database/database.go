package database

import (
	"github.com/ksred/atlas-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migrations for all hedging entities.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Counterparty{},
		&types.Exposure{},
		&types.HedgePolicy{},
		&types.HedgeRecommendation{},
		&types.HedgeOrder{},
		&types.Quote{},
		&types.Trade{},
		&types.Settlement{},
	)
}
