package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/papertrade/papertrade-api/internal/ledger"
	"github.com/papertrade/papertrade-api/internal/portfolio"
	"github.com/papertrade/papertrade-api/internal/quotes"
	"github.com/papertrade/papertrade-api/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service validates and executes buy/sell intents. Quote lookups always
// happen before the atomic commit so provider latency never holds the
// ledger's per-user serialization.
type Service struct {
	ledger    *ledger.Database
	portfolio *portfolio.Service
	quotes    quotes.Source
}

// NewService creates a new trading service over the given database
// connection and quote source.
func NewService(gormDB *gorm.DB, src quotes.Source) *Service {
	return &Service{
		ledger:    ledger.NewDatabase(gormDB),
		portfolio: portfolio.NewService(gormDB),
		quotes:    src,
	}
}

// Buy purchases shares at the current market price, debiting the user's
// cash. The pre-commit funds check gives a fast rejection; non-negativity
// is re-verified inside the ledger commit to close the race window.
func (s *Service) Buy(ctx context.Context, userID uint, symbol string, shares int64) (*types.Receipt, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" || shares <= 0 {
		return nil, ErrInvalidInput
	}

	logger := log.With().
		Str("service", "trading").
		Uint("user_id", userID).
		Str("symbol", symbol).
		Int64("shares", shares).
		Logger()

	quote, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	total := quote.Price.Mul(decimal.NewFromInt(shares))

	prior, err := s.ledger.BalanceOf(userID)
	if err != nil {
		return nil, err
	}
	if prior.Sub(total).IsNegative() {
		logger.Info().
			Str("total", total.String()).
			Str("balance", prior.String()).
			Msg("buy rejected, insufficient funds")
		return nil, ledger.ErrInsufficientFunds
	}

	rec, newBalance, err := s.ledger.CommitTrade(userID, symbol, quote.Name, shares, quote.Price)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("price", quote.Price.String()).
		Str("total", total.String()).
		Str("new_balance", newBalance.String()).
		Msg("buy committed")

	return receipt("BUY", rec, prior, newBalance), nil
}

// Sell disposes of shares at the current market price, not the original
// cost, and credits the proceeds to the user's cash.
func (s *Service) Sell(ctx context.Context, userID uint, symbol string, shares int64) (*types.Receipt, error) {
	holdings, err := s.portfolio.CurrentHoldings(userID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, ErrNoPortfolio
	}

	symbol = normalizeSymbol(symbol)
	if symbol == "" || shares <= 0 {
		return nil, ErrInvalidInput
	}

	logger := log.With().
		Str("service", "trading").
		Uint("user_id", userID).
		Str("symbol", symbol).
		Int64("shares", shares).
		Logger()

	var held *types.Holding
	for i := range holdings {
		if holdings[i].Symbol == symbol {
			held = &holdings[i]
			break
		}
	}
	if held == nil {
		return nil, ErrSymbolNotHeld
	}
	if shares > held.NetShares {
		logger.Info().
			Int64("net_shares", held.NetShares).
			Msg("sell rejected, insufficient shares")
		return nil, ErrInsufficientShares
	}

	quote, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	prior, err := s.ledger.BalanceOf(userID)
	if err != nil {
		return nil, err
	}

	rec, newBalance, err := s.ledger.CommitTrade(userID, symbol, held.Company, -shares, quote.Price)
	if err != nil {
		// A concurrent sell may have shrunk the position since the
		// holdings read; the commit-time re-check catches it.
		if errors.Is(err, ledger.ErrInsufficientShares) {
			return nil, ErrInsufficientShares
		}
		return nil, err
	}

	logger.Info().
		Str("price", quote.Price.String()).
		Str("total", rec.Total.String()).
		Str("new_balance", newBalance.String()).
		Msg("sell committed")

	return receipt("SELL", rec, prior, newBalance), nil
}

// Quote returns the current market quote for a symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (*quotes.Quote, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidInput
	}
	return s.lookup(ctx, symbol)
}

// History returns the user's full ledger, oldest first.
func (s *Service) History(userID uint) ([]types.Transaction, error) {
	return s.ledger.RecordsFor(userID)
}

// PortfolioView assembles the user's active holdings with live prices,
// per-position market value, cash, and the combined total.
func (s *Service) PortfolioView(ctx context.Context, userID uint) (*types.PortfolioView, error) {
	holdings, err := s.portfolio.CurrentHoldings(userID)
	if err != nil {
		return nil, err
	}

	cash, err := s.ledger.BalanceOf(userID)
	if err != nil {
		return nil, err
	}

	view := &types.PortfolioView{
		Positions:  make([]types.Position, 0, len(holdings)),
		Cash:       cash,
		TotalValue: cash,
	}
	for _, h := range holdings {
		quote, err := s.lookup(ctx, h.Symbol)
		if err != nil {
			return nil, fmt.Errorf("pricing %s: %w", h.Symbol, err)
		}
		value := quote.Price.Mul(decimal.NewFromInt(h.NetShares))
		view.Positions = append(view.Positions, types.Position{
			Holding:     h,
			Price:       quote.Price,
			MarketValue: value,
		})
		view.TotalValue = view.TotalValue.Add(value)
	}
	return view, nil
}

func (s *Service) lookup(ctx context.Context, symbol string) (*quotes.Quote, error) {
	quote, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, quotes.ErrUnknownSymbol) {
			return nil, ErrUnknownSymbol
		}
		return nil, err
	}
	return quote, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func receipt(side string, rec *types.Transaction, prior, newBalance decimal.Decimal) *types.Receipt {
	shares := rec.Shares
	if shares < 0 {
		shares = -shares
	}
	return &types.Receipt{
		ReceiptID:    uuid.New().String(),
		Side:         side,
		Symbol:       rec.Symbol,
		Company:      rec.Company,
		Shares:       shares,
		UnitPrice:    rec.Price,
		Total:        rec.Total,
		PriorBalance: prior,
		NewBalance:   newBalance,
		Timestamp:    rec.Timestamp,
	}
}
