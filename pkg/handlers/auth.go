package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/middleware"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	accountService services.AccountService
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accountService services.AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
// Both routes are public.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		WriteServiceError(w, h.logger, err, "register")
		return
	}

	result, err := h.accountService.Register(r.Context(), &req, middleware.ClientIP(r))
	if err != nil {
		WriteServiceError(w, h.logger, err, "register")
		return
	}

	writeResponse(w, h.logger, http.StatusCreated, result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		WriteServiceError(w, h.logger, err, "login")
		return
	}

	result, err := h.accountService.Login(r.Context(), &req, middleware.ClientIP(r))
	if err != nil {
		WriteServiceError(w, h.logger, err, "login")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, result)
}
