package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/logging"
)

// maxJSONBodyBytes caps JSON request bodies.
const maxJSONBodyBytes = 1 << 20

// TenantMiddleware wraps a handler with a tenant-scoped database connection.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response, logging if the write itself fails.
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeResponse writes a JSON body, logging if the write fails.
func writeResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	if err := WriteJSON(w, statusCode, data); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// WriteServiceError maps a service error onto an HTTP status via the
// apperrors sentinels. Unrecognized errors are logged and reported as 500
// without detail.
func WriteServiceError(w http.ResponseWriter, logger *zap.Logger, err error, operation string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeError(w, logger, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, logger, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrUnauthenticated):
		writeError(w, logger, http.StatusUnauthorized, "unauthorized", "Invalid email or password")
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrPayloadTooLarge):
		writeError(w, logger, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
	case errors.Is(err, apperrors.ErrUnsupportedMediaType):
		writeError(w, logger, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	default:
		logger.Error("Request failed",
			zap.String("operation", operation),
			zap.String("error", logging.SanitizeError(err)))
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// decodeJSON reads a size-limited JSON body into dst. With strict set,
// unknown fields are rejected. Errors are wrapped apperrors sentinels.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, strict bool) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(body)
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body exceeds %d bytes", apperrors.ErrPayloadTooLarge, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is required", apperrors.ErrInvalidInput)
		default:
			return fmt.Errorf("%w: invalid request body: %v", apperrors.ErrInvalidInput, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON value", apperrors.ErrInvalidInput)
	}
	return nil
}
