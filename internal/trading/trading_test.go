package trading

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/papertrade/papertrade-api/internal/database"
	"github.com/papertrade/papertrade-api/internal/ledger"
	"github.com/papertrade/papertrade-api/internal/portfolio"
	"github.com/papertrade/papertrade-api/internal/quotes"
	"github.com/shopspring/decimal"
)

// stubSource serves fixed quotes so tests control market prices exactly.
type stubSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	names  map[string]string
	err    error
}

func newStubSource() *stubSource {
	return &stubSource{
		prices: make(map[string]decimal.Decimal),
		names:  make(map[string]string),
	}
}

func (s *stubSource) set(symbol, name string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
	s.names[symbol] = name
}

func (s *stubSource) Lookup(_ context.Context, symbol string) (*quotes.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return nil, quotes.ErrUnknownSymbol
	}
	return &quotes.Quote{Symbol: symbol, Name: s.names[symbol], Price: price}, nil
}

func setupEngine(t *testing.T, cash int64) (*Service, *stubSource, *ledger.Database, uint) {
	t.Helper()
	db := database.SetupTestDB(t)
	userID := database.CreateTestUser(t, db, "engine", decimal.NewFromInt(cash))
	src := newStubSource()
	return NewService(db, src), src, ledger.NewDatabase(db), userID
}

func TestBuyCommitsTradeAndReturnsReceipt(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	rcpt, err := svc.Buy(context.Background(), userID, "ABC", 10)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if rcpt.Side != "BUY" || rcpt.Symbol != "ABC" || rcpt.Company != "ABC Corp" {
		t.Errorf("unexpected receipt identity: %+v", rcpt)
	}
	if rcpt.Shares != 10 || !rcpt.UnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected receipt amounts: %+v", rcpt)
	}
	if !rcpt.Total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected total 1000, got %s", rcpt.Total)
	}
	if !rcpt.PriorBalance.Equal(decimal.NewFromInt(10000)) || !rcpt.NewBalance.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("expected balances 10000 -> 9000, got %s -> %s", rcpt.PriorBalance, rcpt.NewBalance)
	}

	records, err := store.RecordsFor(userID)
	if err != nil {
		t.Fatalf("RecordsFor failed: %v", err)
	}
	if len(records) != 1 || records[0].Shares != 10 || !records[0].Total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("unexpected ledger state: %+v", records)
	}
}

func TestSellUsesCurrentMarketPrice(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	if _, err := svc.Buy(context.Background(), userID, "ABC", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	// The market moves before the sell; proceeds must price at 120, not 100
	src.set("ABC", "ABC Corp", decimal.NewFromInt(120))

	rcpt, err := svc.Sell(context.Background(), userID, "ABC", 5)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if rcpt.Side != "SELL" || rcpt.Shares != 5 {
		t.Errorf("unexpected receipt: %+v", rcpt)
	}
	if !rcpt.UnitPrice.Equal(decimal.NewFromInt(120)) || !rcpt.Total.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected sell priced at 120 totalling 600, got %s / %s", rcpt.UnitPrice, rcpt.Total)
	}
	if !rcpt.NewBalance.Equal(decimal.NewFromInt(9600)) {
		t.Errorf("expected balance 9600, got %s", rcpt.NewBalance)
	}

	records, err := store.RecordsFor(userID)
	if err != nil {
		t.Fatalf("RecordsFor failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Shares != -5 || !records[1].Price.Equal(decimal.NewFromInt(120)) {
		t.Errorf("sell record should carry the market price: %+v", records[1])
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 50)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	_, err := svc.Buy(context.Background(), userID, "ABC", 1)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	records, _ := store.RecordsFor(userID)
	if len(records) != 0 {
		t.Errorf("expected no records after rejection, got %d", len(records))
	}
	balance, _ := store.BalanceOf(userID)
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected balance unchanged at 50, got %s", balance)
	}
}

func TestBuyValidation(t *testing.T) {
	svc, src, _, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	cases := []struct {
		name   string
		symbol string
		shares int64
	}{
		{"empty symbol", "", 5},
		{"blank symbol", "   ", 5},
		{"zero shares", "ABC", 0},
		{"negative shares", "ABC", -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Buy(context.Background(), userID, tc.symbol, tc.shares); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBuyUnknownSymbol(t *testing.T) {
	svc, _, _, userID := setupEngine(t, 10000)

	if _, err := svc.Buy(context.Background(), userID, "NOPE", 1); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestBuyNormalizesSymbol(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(10))

	if _, err := svc.Buy(context.Background(), userID, "  abc ", 1); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	records, _ := store.RecordsFor(userID)
	if len(records) != 1 || records[0].Symbol != "ABC" {
		t.Errorf("expected uppercase-normalized symbol, got %+v", records)
	}
}

func TestSellRejections(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	// Nothing held at all
	if _, err := svc.Sell(context.Background(), userID, "ABC", 1); !errors.Is(err, ErrNoPortfolio) {
		t.Fatalf("expected ErrNoPortfolio, got %v", err)
	}

	if _, err := svc.Buy(context.Background(), userID, "ABC", 5); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	// Symbol never bought
	if _, err := svc.Sell(context.Background(), userID, "XYZ", 1); !errors.Is(err, ErrSymbolNotHeld) {
		t.Fatalf("expected ErrSymbolNotHeld, got %v", err)
	}

	// More than held
	if _, err := svc.Sell(context.Background(), userID, "ABC", 6); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	// Zero and negative counts are invalid input, same as the buy path
	if _, err := svc.Sell(context.Background(), userID, "ABC", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero shares, got %v", err)
	}
	if _, err := svc.Sell(context.Background(), userID, "ABC", -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative shares, got %v", err)
	}

	// None of the rejections touched the ledger
	records, _ := store.RecordsFor(userID)
	if len(records) != 1 {
		t.Errorf("expected only the buy record, got %d", len(records))
	}
	balance, _ := store.BalanceOf(userID)
	if !balance.Equal(decimal.NewFromInt(9500)) {
		t.Errorf("expected balance 9500, got %s", balance)
	}
}

func TestQuoteFailureLeavesLedgerUntouched(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))
	src.err = quotes.ErrUnavailable

	if _, err := svc.Buy(context.Background(), userID, "ABC", 1); !errors.Is(err, quotes.ErrUnavailable) {
		t.Fatalf("expected quote unavailability to surface, got %v", err)
	}

	records, _ := store.RecordsFor(userID)
	if len(records) != 0 {
		t.Errorf("expected no partial mutation, got %d records", len(records))
	}
	balance, _ := store.BalanceOf(userID)
	if !balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected balance unchanged, got %s", balance)
	}
}

func TestConcurrentBuysSameUser(t *testing.T) {
	svc, src, store, userID := setupEngine(t, 500)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Buy(context.Background(), userID, "ABC", 1)
		}(i)
	}
	wg.Wait()

	var committed int
	for _, err := range errs {
		if err == nil {
			committed++
		} else if !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if committed != 5 {
		t.Errorf("expected exactly 5 committed buys, got %d", committed)
	}

	balance, _ := store.BalanceOf(userID)
	if !balance.Equal(decimal.Zero) {
		t.Errorf("expected final balance 0, got %s", balance)
	}
}

func TestHistoryReturnsLedgerOldestFirst(t *testing.T) {
	svc, src, _, userID := setupEngine(t, 100000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(10))
	src.set("XYZ", "XYZ Inc", decimal.NewFromInt(20))

	if _, err := svc.Buy(context.Background(), userID, "ABC", 2); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.Buy(context.Background(), userID, "XYZ", 3); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.Sell(context.Background(), userID, "ABC", 1); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	records, err := svc.History(userID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Symbol != "ABC" || records[1].Symbol != "XYZ" || records[2].Shares != -1 {
		t.Errorf("unexpected history order: %+v", records)
	}
}

func TestPortfolioViewTotals(t *testing.T) {
	svc, src, _, userID := setupEngine(t, 10000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))
	src.set("XYZ", "XYZ Inc", decimal.NewFromInt(50))

	if _, err := svc.Buy(context.Background(), userID, "ABC", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.Buy(context.Background(), userID, "XYZ", 20); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	view, err := svc.PortfolioView(context.Background(), userID)
	if err != nil {
		t.Fatalf("portfolio view failed: %v", err)
	}
	if len(view.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(view.Positions))
	}
	// 10000 - 1000 - 1000 cash, plus 1000 + 1000 market value
	if !view.Cash.Equal(decimal.NewFromInt(8000)) {
		t.Errorf("expected cash 8000, got %s", view.Cash)
	}
	if !view.TotalValue.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected total value 10000, got %s", view.TotalValue)
	}
	for _, pos := range view.Positions {
		want := pos.Price.Mul(decimal.NewFromInt(pos.NetShares))
		if !pos.MarketValue.Equal(want) {
			t.Errorf("position %s: market value %s, want %s", pos.Symbol, pos.MarketValue, want)
		}
	}
}

func TestQuoteValidation(t *testing.T) {
	svc, src, _, _ := setupEngine(t, 1000)
	src.set("ABC", "ABC Corp", decimal.NewFromInt(100))

	if _, err := svc.Quote(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty symbol, got %v", err)
	}

	quote, err := svc.Quote(context.Background(), "abc")
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.Symbol != "ABC" || !quote.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected quote: %+v", quote)
	}
}

// gateSource parks lookups until released so overlapping sells can both
// clear their holdings checks before either reaches the ledger.
type gateSource struct {
	inner   *stubSource
	arrived chan struct{}
	release chan struct{}
}

func (g *gateSource) Lookup(ctx context.Context, symbol string) (*quotes.Quote, error) {
	g.arrived <- struct{}{}
	<-g.release
	return g.inner.Lookup(ctx, symbol)
}

func TestConcurrentSellsCannotOversell(t *testing.T) {
	db := database.SetupTestDB(t)
	userID := database.CreateTestUser(t, db, "seller", decimal.NewFromInt(10000))

	inner := newStubSource()
	inner.set("ABC", "ABC Corp", decimal.NewFromInt(100))
	gate := &gateSource{
		inner:   inner,
		arrived: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(db, gate)

	// Seed a 5-share position through the ledger so only the sells pass
	// through the gate.
	store := ledger.NewDatabase(db)
	if _, _, err := store.CommitTrade(userID, "ABC", "ABC Corp", 5, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("seeding buy failed: %v", err)
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Sell(context.Background(), userID, "ABC", 5)
			errs <- err
		}()
	}

	// Once both sells reach the quote lookup they have each seen the
	// full 5-share position.
	<-gate.arrived
	<-gate.arrived
	close(gate.release)

	var committed, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			committed++
		case errors.Is(err, ErrInsufficientShares):
			rejected++
		default:
			t.Fatalf("unexpected sell error: %v", err)
		}
	}
	if committed != 1 || rejected != 1 {
		t.Fatalf("expected exactly one sell to commit, got %d committed / %d rejected", committed, rejected)
	}

	net, err := portfolio.NewService(db).NetSharesOf(userID, "ABC")
	if err != nil {
		t.Fatalf("NetSharesOf failed: %v", err)
	}
	if net != 0 {
		t.Errorf("expected net shares 0 after overlapping sells, got %d", net)
	}

	// 10000 - 500 buy + 500 for the single sell that landed
	balance, err := store.BalanceOf(userID)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected balance 10000, got %s", balance)
	}
}
