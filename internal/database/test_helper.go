package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/papertrade/papertrade-api/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SetupTestDB creates a migrated database in a per-test temp directory
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to set up test database: %v", err)
	}
	return db
}

// CreateTestUser creates a test user and returns its ID
func CreateTestUser(t *testing.T, db *gorm.DB, username string, cash decimal.Decimal) uint {
	t.Helper()

	// Make username unique by adding timestamp
	user := &types.User{
		Username:     fmt.Sprintf("%s_%d", username, time.Now().UnixNano()),
		PasswordHash: "not-a-real-hash",
		Cash:         cash,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user.ID
}
