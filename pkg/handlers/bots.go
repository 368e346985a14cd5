package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

// SuccessResponse acknowledges a mutation that returns no resource.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// BotsHandler handles bot CRUD requests.
type BotsHandler struct {
	botService services.BotService
	logger     *zap.Logger
}

// NewBotsHandler creates a new bots handler.
func NewBotsHandler(botService services.BotService, logger *zap.Logger) *BotsHandler {
	return &BotsHandler{
		botService: botService,
		logger:     logger,
	}
}

// RegisterRoutes registers the bots handler's routes on the given mux.
func (h *BotsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	base := "/bots"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(tenantMiddleware(h.Create)))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PATCH "+base+"/{id}", authMiddleware.RequireAuth(tenantMiddleware(h.Update)))
	mux.HandleFunc("PUT "+base+"/{id}", authMiddleware.RequireAuth(tenantMiddleware(h.Update)))
	mux.HandleFunc("DELETE "+base+"/{id}", authMiddleware.RequireAuth(tenantMiddleware(h.Delete)))
}

// List handles GET /bots
func (h *BotsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	bots, err := h.botService.List(r.Context(), ownerID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list bots")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, bots)
}

// Create handles POST /bots
func (h *BotsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateBotRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		WriteServiceError(w, h.logger, err, "create bot")
		return
	}

	bot, err := h.botService.Create(r.Context(), ownerID, &req)
	if err != nil {
		WriteServiceError(w, h.logger, err, "create bot")
		return
	}

	writeResponse(w, h.logger, http.StatusCreated, bot)
}

// Get handles GET /bots/{id}
func (h *BotsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	botID, ok := ParseBotID(w, r, h.logger)
	if !ok {
		return
	}

	bot, err := h.botService.Get(r.Context(), ownerID, botID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get bot")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, bot)
}

// Update handles PATCH and PUT /bots/{id}. Both are partial; keys outside
// the updatable set are rejected.
func (h *BotsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	botID, ok := ParseBotID(w, r, h.logger)
	if !ok {
		return
	}

	var update models.BotUpdate
	if err := decodeJSON(w, r, &update, true); err != nil {
		WriteServiceError(w, h.logger, err, "update bot")
		return
	}

	bot, err := h.botService.Update(r.Context(), ownerID, botID, &update)
	if err != nil {
		WriteServiceError(w, h.logger, err, "update bot")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, bot)
}

// Delete handles DELETE /bots/{id}
func (h *BotsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	botID, ok := ParseBotID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.botService.Delete(r.Context(), ownerID, botID); err != nil {
		WriteServiceError(w, h.logger, err, "delete bot")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, SuccessResponse{Success: true})
}
