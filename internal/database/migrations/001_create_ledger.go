package migrations

import (
	"github.com/papertrade/papertrade-api/internal/types"
	"gorm.io/gorm"
)

// CreateLedger creates the transactions table and its uniqueness index.
// Creation is idempotent and runs at startup, so read paths never have to
// special-case a missing table and concurrent first writers cannot race to
// create it twice.
func CreateLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Transaction{}); err != nil {
		return err
	}

	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Secondary uniqueness key: one entry per (user, instant)
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_user_ts
		 ON transactions(user_id, timestamp)`,

		// Index for per-user, per-symbol aggregation
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol
		 ON transactions(user_id, symbol)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
