package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/middleware"
)

// RejectionAuditor records rejected authentication attempts.
type RejectionAuditor interface {
	LogAuthRejected(ctx context.Context, path, reason, clientIP string)
}

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	auditor     RejectionAuditor
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
// auditor may be nil.
func NewMiddleware(authService AuthService, auditor RejectionAuditor, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		auditor:     auditor,
		logger:      logger,
	}
}

// RequireAuth resolves the request's bearer token to a principal and stores it
// in the context for downstream handlers. Every authentication failure gets the
// same 401 body; failures while checking get a 500.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principalID, err := m.authService.ValidateRequest(r)
		if err != nil {
			if !IsAuthFailure(err) {
				m.logger.Error("Authentication check failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				m.internalError(w)
				return
			}
			if m.auditor != nil {
				m.auditor.LogAuthRejected(r.Context(), r.URL.Path, err.Error(), middleware.ClientIP(r))
			}
			m.unauthorized(w, "Authentication required")
			return
		}

		next(w, r.WithContext(WithPrincipal(r.Context(), principalID)))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// internalError returns a 500 response with JSON error body.
func (m *Middleware) internalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "internal_error",
		"message": "Internal server error",
	})
}
