package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

// StatsHandler serves usage statistics and the activity feed.
type StatsHandler struct {
	statsService services.StatsService
	logger       *zap.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsService services.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// RegisterRoutes registers the stats handler's routes on the given mux.
func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /stats", authMiddleware.RequireAuth(tenantMiddleware(h.Stats)))
	mux.HandleFunc("GET /recent-activity", authMiddleware.RequireAuth(tenantMiddleware(h.RecentActivity)))
}

// Stats handles GET /stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	stats, err := h.statsService.Stats(r.Context(), ownerID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get stats")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, stats)
}

// RecentActivity handles GET /recent-activity
func (h *StatsHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	logs, err := h.statsService.RecentActivity(r.Context(), ownerID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get recent activity")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, logs)
}
