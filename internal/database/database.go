package database

import (
	"fmt"

	"github.com/papertrade/papertrade-api/internal/database/migrations"
	"github.com/papertrade/papertrade-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "finance.db"
	}

	// busy_timeout keeps concurrent writers queueing instead of failing fast.
	// TranslateError surfaces unique violations as gorm.ErrDuplicatedKey,
	// which the ledger maps to its duplicate-timestamp rejection.
	dsn := fmt.Sprintf("%s?_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.CreateLedger(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	if err := db.AutoMigrate(&types.User{}); err != nil {
		return nil, err
	}

	return db, nil
}
