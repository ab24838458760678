package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/papertrade/papertrade-api/pkg/response"
)

// RegisterRequest is the body for account creation.
type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// LoginRequest is the body for credential verification.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests to create a new account
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		user, err := h.service.Register(req.Username, req.Password, req.Confirmation)
		switch {
		case errors.Is(err, ErrMissingFields), errors.Is(err, ErrPasswordMismatch):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrUsernameTaken):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, user, err)
		}
	}
}

// LoginHandler handles POST requests to exchange credentials for a JWT
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.Login(req.Username, req.Password)
		switch {
		case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrMissingFields):
			response.Unauthorized(c, "invalid username and/or password")
		default:
			response.Handle(c, token, err)
		}
	}
}
