package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is the structured result of a committed buy or sell.
type Receipt struct {
	ReceiptID    string          `json:"receipt_id"`
	Side         string          `json:"side"` // BUY or SELL
	Symbol       string          `json:"symbol"`
	Company      string          `json:"company"`
	Shares       int64           `json:"shares"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Total        decimal.Decimal `json:"total"`
	PriorBalance decimal.Decimal `json:"prior_balance"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Holding is a derived position: the net shares a user currently holds
// for one symbol. Only holdings with NetShares > 0 appear in portfolio views.
type Holding struct {
	Symbol    string `json:"symbol"`
	Company   string `json:"company"`
	NetShares int64  `json:"net_shares"`
}

// Position is a holding enriched with a live quote for presentation.
type Position struct {
	Holding
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// PortfolioView is the full portfolio summary returned to the caller.
type PortfolioView struct {
	Positions  []Position      `json:"positions"`
	Cash       decimal.Decimal `json:"cash"`
	TotalValue decimal.Decimal `json:"total_value"`
}
