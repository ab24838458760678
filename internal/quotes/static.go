package quotes

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StaticSource serves quotes from an in-memory instrument list with a small
// random walk applied on every lookup. It stands in for the external quote
// provider in simulations and local development.
type StaticSource struct {
	mu          sync.Mutex
	instruments map[string]*instrument
	rng         *rand.Rand
}

type instrument struct {
	name  string
	price decimal.Decimal
}

func NewStaticSource() *StaticSource {
	s := &StaticSource{
		instruments: make(map[string]*instrument),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	seed := []struct {
		symbol, name string
		price        string
	}{
		{"AAPL", "Apple Inc", "180.00"},
		{"GOOGL", "Alphabet Inc", "140.00"},
		{"MSFT", "Microsoft Corporation", "410.00"},
		{"AMZN", "Amazon.com Inc", "175.00"},
		{"META", "Meta Platforms Inc", "500.00"},
	}
	for _, in := range seed {
		s.instruments[in.symbol] = &instrument{
			name:  in.name,
			price: decimal.RequireFromString(in.price),
		}
	}
	return s
}

// SetPrice pins a symbol's price, adding the instrument if needed.
func (s *StaticSource) SetPrice(symbol, name string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[strings.ToUpper(symbol)] = &instrument{name: name, price: price}
}

func (s *StaticSource) Lookup(_ context.Context, symbol string) (*Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	in, ok := s.instruments[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}

	// Random walk within +-2% per observation, floored at one cent.
	variance := decimal.NewFromFloat(1 + (s.rng.Float64()*0.04 - 0.02))
	next := in.price.Mul(variance).Round(2)
	if !next.IsPositive() {
		next = decimal.New(1, -2)
	}
	in.price = next

	return &Quote{Symbol: symbol, Name: in.name, Price: in.price}, nil
}
