package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/auth"
)

// ParseBotID extracts and validates the bot ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseBotID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_bot_id", "Invalid bot ID format", logger)
}

// ParseFileID extracts and validates the knowledge file ID from the request path.
// Expects path parameter: id
func ParseFileID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_file_id", "Invalid file ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// requirePrincipal returns the authenticated user, writing a 500 when the
// handler was mounted without RequireAuth.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	id, ok := auth.GetPrincipalID(r.Context())
	if !ok {
		logger.Error("Missing principal in request context", zap.String("path", r.URL.Path))
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "Missing user context")
		return uuid.Nil, false
	}
	return id, true
}
