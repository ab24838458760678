package quotes

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Quote is the current market price and display name for one symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

var (
	// ErrUnknownSymbol is returned when the quote provider does not
	// recognize the requested symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrUnavailable is returned for any other failure: network errors,
	// timeouts, malformed responses. Callers treat it as retryable and
	// must not commit anything on its back.
	ErrUnavailable = errors.New("quote source unavailable")
)

// Source looks up live quotes. Implementations may be slow or unreliable;
// callers are expected to bound calls with the context and never hold a
// lock across a lookup.
type Source interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}
