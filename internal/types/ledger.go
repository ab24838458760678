package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an account holder. Cash is only ever mutated by the ledger as
// part of a committed trade; registration seeds it with the starting balance.
type User struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Username     string          `gorm:"uniqueIndex" json:"username"`
	PasswordHash string          `json:"-"`
	Cash         decimal.Decimal `gorm:"type:numeric" json:"cash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Transaction is a single immutable ledger entry. Shares is signed:
// positive for a buy, negative for a sell. Total is Price * |Shares|,
// stored for audit. The (user_id, timestamp) pair is unique, which guards
// against double submissions landing on the same clock reading.
type Transaction struct {
	TransID   uint            `gorm:"primaryKey;autoIncrement" json:"trans_id"`
	UserID    uint            `gorm:"index:idx_transactions_user_ts,unique" json:"user_id"`
	Timestamp time.Time       `gorm:"index:idx_transactions_user_ts,unique" json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Company   string          `json:"company"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `gorm:"type:numeric" json:"price"`
	Total     decimal.Decimal `gorm:"type:numeric" json:"total"`
}
