package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

// UsersHandler serves the caller's profile.
type UsersHandler struct {
	accountService services.AccountService
	logger         *zap.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(accountService services.AccountService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// RegisterRoutes registers the users handler's routes on the given mux.
// The users table has no row-level security, so no tenant connection is needed.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /user", authMiddleware.RequireAuth(h.Profile))
}

// Profile handles GET /user
func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.accountService.Profile(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get profile")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, user)
}
