package trading

import "errors"

var (
	// ErrInvalidInput covers malformed requests: empty symbol or a share
	// count that is not a strictly positive integer. Zero and negative
	// counts are rejected for both buys and sells.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownSymbol is returned when the quote source does not know
	// the requested symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrSymbolNotHeld is returned by a sell when the symbol is absent
	// from the user's current holdings.
	ErrSymbolNotHeld = errors.New("symbol not held")

	// ErrNoPortfolio is returned by a sell when the user holds nothing.
	ErrNoPortfolio = errors.New("no portfolio")

	// ErrInsufficientShares is returned when a sell asks for more shares
	// than the user's net position.
	ErrInsufficientShares = errors.New("insufficient shares")
)
