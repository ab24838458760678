package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/papertrade/papertrade-api/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Database is the ledger store: the append-only transaction log plus the
// single mutable cash balance per user. CommitTrade is the only entry point
// that mutates both together and is the concurrency boundary for trades.
type Database struct {
	db *gorm.DB

	// Per-user locks serialize commits for the same user so overlapping
	// requests cannot race the read-compute-write of the cash balance.
	// Trades by different users proceed in parallel.
	userLocks map[uint]*sync.Mutex
	mapMu     sync.Mutex
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{
		db:        db,
		userLocks: make(map[uint]*sync.Mutex),
	}
}

func (d *Database) lockUser(userID uint) *sync.Mutex {
	d.mapMu.Lock()
	mu, ok := d.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		d.userLocks[userID] = mu
	}
	d.mapMu.Unlock()

	mu.Lock()
	return mu
}

// Append writes a single ledger record without touching the cash balance.
// Total is computed from Price and Shares, and a zero Timestamp is filled
// with the current time. Records are immutable once written; there is no
// update or delete path.
func (d *Database) Append(rec *types.Transaction) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Total = rec.Price.Mul(decimal.NewFromInt(rec.Shares).Abs())

	if err := d.db.Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTimestamp
		}
		return err
	}
	return nil
}

// AdjustBalance atomically adds delta to the user's cash and returns the
// new balance. The adjustment is rejected with ErrInsufficientFunds if the
// result would be negative.
func (d *Database) AdjustBalance(userID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	mu := d.lockUser(userID)
	defer mu.Unlock()

	var newBalance decimal.Decimal
	err := d.db.Transaction(func(tx *gorm.DB) error {
		balance, err := balanceTx(tx, userID)
		if err != nil {
			return err
		}
		newBalance = balance.Add(delta)
		if newBalance.IsNegative() {
			return ErrInsufficientFunds
		}
		return tx.Model(&types.User{}).Where("id = ?", userID).
			Update("cash", newBalance).Error
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// CommitTrade appends a ledger record and applies the matching cash
// adjustment as one atomic unit: either both are durably visible together
// or neither is. A positive shareDelta is a buy (cash decreases by
// unitPrice * shares), a negative one a sell (cash increases). Both
// non-negativity invariants are re-verified inside the transaction, cash
// for buys and the net position for sells, so a concurrent commit for the
// same user cannot slip an overdraft or an oversell past an earlier read.
func (d *Database) CommitTrade(userID uint, symbol, company string, shareDelta int64, unitPrice decimal.Decimal) (*types.Transaction, decimal.Decimal, error) {
	mu := d.lockUser(userID)
	defer mu.Unlock()

	total := unitPrice.Mul(decimal.NewFromInt(shareDelta).Abs())
	cashDelta := total
	if shareDelta > 0 {
		cashDelta = total.Neg()
	}

	rec := &types.Transaction{
		UserID:    userID,
		Timestamp: time.Now(),
		Symbol:    symbol,
		Company:   company,
		Shares:    shareDelta,
		Price:     unitPrice,
		Total:     total,
	}

	var newBalance decimal.Decimal
	err := d.db.Transaction(func(tx *gorm.DB) error {
		balance, err := balanceTx(tx, userID)
		if err != nil {
			return err
		}
		newBalance = balance.Add(cashDelta)
		if newBalance.IsNegative() {
			return ErrInsufficientFunds
		}

		if shareDelta < 0 {
			held, err := netSharesTx(tx, userID, symbol)
			if err != nil {
				return err
			}
			if held+shareDelta < 0 {
				return ErrInsufficientShares
			}
		}

		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateTimestamp
			}
			return err
		}

		return tx.Model(&types.User{}).Where("id = ?", userID).
			Update("cash", newBalance).Error
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return rec, newBalance, nil
}

// RecordsFor returns every ledger record for the user in insertion order.
// A user who has never traded gets an empty slice, not an error.
func (d *Database) RecordsFor(userID uint) ([]types.Transaction, error) {
	records := make([]types.Transaction, 0)
	err := d.db.Where("user_id = ?", userID).
		Order("timestamp asc, trans_id asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// BalanceOf returns the user's current cash balance.
func (d *Database) BalanceOf(userID uint) (decimal.Decimal, error) {
	return balanceTx(d.db, userID)
}

func netSharesTx(tx *gorm.DB, userID uint, symbol string) (int64, error) {
	var net int64
	err := tx.Model(&types.Transaction{}).
		Select("COALESCE(SUM(shares), 0)").
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Scan(&net).Error
	if err != nil {
		return 0, err
	}
	return net, nil
}

func balanceTx(tx *gorm.DB, userID uint) (decimal.Decimal, error) {
	var user types.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, err
	}
	return user.Cash, nil
}
