package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 5 * time.Second

// HTTPSource fetches quotes from an IEX-style REST endpoint:
// GET {base}/quote/{symbol}?token={key} returning symbol, companyName
// and latestPrice. A 404 means the symbol is unknown; anything else
// that isn't a clean 200 maps to ErrUnavailable.
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type quotePayload struct {
	Symbol      string      `json:"symbol"`
	CompanyName string      `json:"companyName"`
	LatestPrice json.Number `json:"latestPrice"`
}

func (s *HTTPSource) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	logger := log.With().
		Str("component", "quote_source").
		Str("symbol", symbol).
		Logger()

	endpoint := fmt.Sprintf("%s/quote/%s?token=%s",
		s.baseURL, url.PathEscape(symbol), url.QueryEscape(s.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("quote request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownSymbol
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", resp.StatusCode).Msg("unexpected quote response")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Warn().Err(err).Msg("failed to parse quote response")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	price, err := decimal.NewFromString(payload.LatestPrice.String())
	if err != nil || !price.IsPositive() {
		logger.Warn().Str("price", payload.LatestPrice.String()).Msg("malformed quote price")
		return nil, fmt.Errorf("%w: malformed price", ErrUnavailable)
	}

	return &Quote{
		Symbol: strings.ToUpper(payload.Symbol),
		Name:   payload.CompanyName,
		Price:  price,
	}, nil
}
