package portfolio

import (
	"github.com/papertrade/papertrade-api/internal/types"
	"gorm.io/gorm"
)

// Service projects current holdings from the ledger. It holds no state of
// its own: every call recomputes from the transaction log, so the view can
// never drift from the system of record. Callers needing caching must build
// it externally and invalidate on every commit for the same user.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CurrentHoldings returns the user's active positions: net shares per
// symbol summed over all ledger records, keeping only symbols with a
// positive net. Ordering beyond the grouping is unspecified.
func (s *Service) CurrentHoldings(userID uint) ([]types.Holding, error) {
	holdings := make([]types.Holding, 0)
	err := s.db.Model(&types.Transaction{}).
		Select("symbol, company, SUM(shares) AS net_shares").
		Where("user_id = ?", userID).
		Group("symbol").
		Having("SUM(shares) > 0").
		Scan(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// NetSharesOf returns the net shares the user holds for one symbol,
// zero if the symbol has never been traded.
func (s *Service) NetSharesOf(userID uint, symbol string) (int64, error) {
	var net int64
	err := s.db.Model(&types.Transaction{}).
		Select("COALESCE(SUM(shares), 0)").
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Scan(&net).Error
	if err != nil {
		return 0, err
	}
	return net, nil
}
