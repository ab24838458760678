package trading

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/papertrade/papertrade-api/internal/ledger"
	"github.com/papertrade/papertrade-api/internal/quotes"
	"github.com/papertrade/papertrade-api/pkg/response"
)

// TradeRequest is the body for buy and sell endpoints.
type TradeRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// BuyHandler handles POST requests to buy shares at the current market price
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req TradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Reject(c, http.StatusBadRequest, response.ErrCodeInvalidInput, err.Error())
			return
		}

		rcpt, err := h.service.Buy(c.Request.Context(), userID, req.Symbol, req.Shares)
		if err != nil {
			rejectTradeError(c, err)
			return
		}
		response.Success(c, rcpt)
	}
}

// SellHandler handles POST requests to sell held shares at the current market price
func (h *GinHandlers) SellHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req TradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Reject(c, http.StatusBadRequest, response.ErrCodeInvalidInput, err.Error())
			return
		}

		rcpt, err := h.service.Sell(c.Request.Context(), userID, req.Symbol, req.Shares)
		if err != nil {
			rejectTradeError(c, err)
			return
		}
		response.Success(c, rcpt)
	}
}

// QuoteHandler handles GET requests for a live quote
// URL parameter: symbol
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := h.service.Quote(c.Request.Context(), c.Param("symbol"))
		if err != nil {
			rejectTradeError(c, err)
			return
		}
		response.Success(c, quote)
	}
}

// PortfolioHandler handles GET requests for the caller's portfolio summary
func (h *GinHandlers) PortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		view, err := h.service.PortfolioView(c.Request.Context(), userID)
		if err != nil {
			rejectTradeError(c, err)
			return
		}
		response.Success(c, view)
	}
}

// HistoryHandler handles GET requests for the caller's transaction history
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		records, err := h.service.History(userID)
		if err != nil {
			rejectTradeError(c, err)
			return
		}
		response.Success(c, records)
	}
}

func currentUserID(c *gin.Context) (uint, bool) {
	id := c.GetUint("userID")
	if id == 0 {
		response.Unauthorized(c, "Missing authentication claims")
		return 0, false
	}
	return id, true
}

func rejectTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		response.Reject(c, http.StatusBadRequest, response.ErrCodeInvalidInput, "symbol and a positive integer share count are required")
	case errors.Is(err, ErrUnknownSymbol):
		response.Reject(c, http.StatusNotFound, response.ErrCodeUnknownSymbol, "symbol not recognized")
	case errors.Is(err, ErrSymbolNotHeld):
		response.Reject(c, http.StatusBadRequest, response.ErrCodeSymbolNotHeld, "symbol not found in portfolio")
	case errors.Is(err, ErrNoPortfolio):
		response.Reject(c, http.StatusBadRequest, response.ErrCodeNoPortfolio, "no portfolio set up yet")
	case errors.Is(err, ErrInsufficientShares), errors.Is(err, ledger.ErrInsufficientShares):
		response.Reject(c, http.StatusBadRequest, response.ErrCodeInsufficientShares, "share count exceeds current holding")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		response.Reject(c, http.StatusBadRequest, response.ErrCodeInsufficientFunds, "balance is not enough")
	case errors.Is(err, ledger.ErrDuplicateTimestamp):
		response.Reject(c, http.StatusConflict, response.ErrCodeDuplicateSubmission, "duplicate submission, please retry")
	case errors.Is(err, quotes.ErrUnavailable):
		response.ServiceUnavailable(c, response.ErrCodeQuoteUnavailable, "quote source unavailable, please retry")
	default:
		// Anything else reaching here is a ledger store failure, which
		// is retryable from the caller's point of view.
		response.ServiceUnavailable(c, response.ErrCodeStoreUnavailable, "ledger store unavailable, please retry")
	}
}
