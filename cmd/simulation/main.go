package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papertrade/papertrade-api/internal/auth"
	"github.com/papertrade/papertrade-api/internal/database"
	"github.com/papertrade/papertrade-api/internal/quotes"
	"github.com/papertrade/papertrade-api/internal/trading"
	"github.com/papertrade/papertrade-api/internal/types"
	"github.com/papertrade/papertrade-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minTrades     = 20
	maxTrades     = 120
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "papertrade-simulation-secret"
)

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint.
// The mutex makes it safe to share across worker goroutines.
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// fail records a failed call
func (rs *routeStats) fail() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
// on behalf of one registered user
type simulationClient struct {
	baseURL   string
	username  string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient registers a fresh user, logs in, and prepares
// performance tracking
func newSimulationClient(username string, stats map[string]*routeStats) (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL:  serverAddress,
		username: username,
		client:   client,
		stats:    stats,
	}

	if err := sc.register(); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	token, err := sc.login()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) register() error {
	start := time.Now()
	defer func() {
		sc.stats["register"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(auth.RegisterRequest{
		Username:     sc.username,
		Password:     "simulated-password",
		Confirmation: "simulated-password",
	})
	if err != nil {
		return err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/register", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// login exchanges the user's credentials for a JWT token
func (sc *simulationClient) login() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["login"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(auth.LoginRequest{
		Username: sc.username,
		Password: "simulated-password",
	})
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/login", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("login failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// trade submits a buy or sell and returns the receipt
func (sc *simulationClient) trade(side, symbol string, shares int64) (*types.Receipt, error) {
	statKey := strings.ToLower(side)
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(trading.TradeRequest{
		Symbol: symbol,
		Shares: shares,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/trades/%s", sc.baseURL, statKey),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Trade response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats[statKey].fail()
		return nil, fmt.Errorf("%s failed with status %d: %s", statKey, resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool          `json:"success"`
		Data    types.Receipt `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// portfolio retrieves the user's current portfolio summary
func (sc *simulationClient) portfolio() (*types.PortfolioView, error) {
	start := time.Now()
	defer func() {
		sc.stats["portfolio"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/portfolio", sc.baseURL),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["portfolio"].fail()
		return nil, fmt.Errorf("portfolio failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                `json:"success"`
		Data    types.PortfolioView `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// history retrieves the user's full transaction ledger
func (sc *simulationClient) history() ([]types.Transaction, error) {
	start := time.Now()
	defer func() {
		sc.stats["history"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/history", sc.baseURL),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["history"].fail()
		return nil, fmt.Errorf("history failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                `json:"success"`
		Data    []types.Transaction `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// runTrader drives one simulated user: random buys, occasional sells of
// whatever is currently held, finishing with a portfolio and history read
func runTrader(workerID int, trades int, stats map[string]*routeStats, results chan<- traderResult) {
	username := fmt.Sprintf("sim_trader_%d_%d", workerID, time.Now().UnixNano())
	client, err := newSimulationClient(username, stats)
	if err != nil {
		log.Error().Err(err).Int("worker", workerID).Msg("Failed to initialize trader")
		results <- traderResult{}
		return
	}

	var res traderResult
	for i := 0; i < trades; i++ {
		symbol := symbols[rand.Intn(len(symbols))]
		shares := int64(rand.Intn(10) + 1)

		// Bias towards buys so sells have something to dispose of
		if rand.Float64() < 0.35 {
			view, err := client.portfolio()
			if err == nil && len(view.Positions) > 0 {
				pos := view.Positions[rand.Intn(len(view.Positions))]
				sellShares := int64(rand.Intn(int(pos.NetShares)) + 1)
				if receipt, err := client.trade("SELL", pos.Symbol, sellShares); err == nil {
					res.sells++
					res.volume += receipt.Total.InexactFloat64()
				} else {
					res.rejected++
				}
				continue
			}
		}

		if receipt, err := client.trade("BUY", symbol, shares); err == nil {
			res.buys++
			res.volume += receipt.Total.InexactFloat64()
		} else {
			// Insufficient funds is expected once the balance is spent
			res.rejected++
		}
	}

	if view, err := client.portfolio(); err == nil {
		res.finalValue = view.TotalValue.InexactFloat64()
	}
	if records, err := client.history(); err == nil {
		res.records = len(records)
	}

	results <- res
}

type traderResult struct {
	buys       int
	sells      int
	rejected   int
	records    int
	volume     float64
	finalValue float64
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// startServer boots an in-process API server backed by a throwaway
// database and the static quote source
func startServer() error {
	gin.SetMode(gin.ReleaseMode)

	db, err := database.NewDatabase(fmt.Sprintf("simulation_%d.db", time.Now().UnixNano()))
	if err != nil {
		return err
	}

	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	tradingService := trading.NewService(db, quotes.NewStaticSource())
	tradingHandlers := trading.NewGinHandlers(tradingService)

	router := gin.New()
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtSecret))
		{
			protected.GET("/quote/:symbol", tradingHandlers.QuoteHandler())
			protected.POST("/trades/buy", tradingHandlers.BuyHandler())
			protected.POST("/trades/sell", tradingHandlers.SellHandler())
			protected.GET("/portfolio", tradingHandlers.PortfolioHandler())
			protected.GET("/history", tradingHandlers.HistoryHandler())
		}
	}

	return router.Run(":8080")
}

// main runs the trading simulation
// It starts a local API server and simulates multiple concurrent traders
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"register":  {name: "Register"},
		"login":     {name: "Login"},
		"buy":       {name: "Buy"},
		"sell":      {name: "Sell"},
		"portfolio": {name: "Portfolio"},
		"history":   {name: "History"},
	}

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Msg("Starting simulation")

	results := make(chan traderResult, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runTrader(workerID, targetTrades/numWorkers, stats, results)
		}(i)
	}

	wg.Wait()
	close(results)

	var total traderResult
	for res := range results {
		total.buys += res.buys
		total.sells += res.sells
		total.rejected += res.rejected
		total.records += res.records
		total.volume += res.volume
		total.finalValue += res.finalValue
	}

	log.Info().
		Int("buys", total.buys).
		Int("sells", total.sells).
		Int("rejected", total.rejected).
		Int("ledger_records", total.records).
		Float64("traded_volume", total.volume).
		Float64("combined_portfolio_value", total.finalValue).
		Msg("Simulation complete")

	printPerformanceStats(stats)
}
