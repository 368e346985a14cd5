package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrPrincipalNotFound    = errors.New("principal no longer exists")
)

// DevPrincipalID is the fixed user that requests without credentials resolve
// to when dev passthrough is enabled. The server creates this user at startup.
var DevPrincipalID = uuid.MustParse("00000000-0000-4000-8000-000000000001")

// IsAuthFailure reports whether err means the caller is unauthenticated,
// as opposed to an internal failure while checking.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrMissingAuthorization) ||
		errors.Is(err, ErrInvalidAuthFormat) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrPrincipalNotFound)
}

// PrincipalStore confirms that a token subject still refers to a user.
type PrincipalStore interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// AuthService defines the interface for authentication operations.
type AuthService interface {
	// ValidateRequest extracts the bearer token from the Authorization header,
	// verifies it, and confirms the principal exists.
	ValidateRequest(r *http.Request) (uuid.UUID, error)
}

// authService implements AuthService.
type authService struct {
	tokens         TokenManager
	principals     PrincipalStore
	devPassthrough bool
	logger         *zap.Logger
}

// NewAuthService creates a new AuthService.
// With devPassthrough set, a request carrying no Authorization header
// resolves to DevPrincipalID instead of failing.
func NewAuthService(tokens TokenManager, principals PrincipalStore, devPassthrough bool, logger *zap.Logger) AuthService {
	return &authService{
		tokens:         tokens,
		principals:     principals,
		devPassthrough: devPassthrough,
		logger:         logger,
	}
}

// ValidateRequest extracts and validates a JWT from the request.
func (s *authService) ValidateRequest(r *http.Request) (uuid.UUID, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if s.devPassthrough {
			if err := s.checkExists(r.Context(), DevPrincipalID); err != nil {
				return uuid.Nil, err
			}
			return DevPrincipalID, nil
		}
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return uuid.Nil, ErrMissingAuthorization
	}

	tokenString, ok := parseBearer(authHeader)
	if !ok {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return uuid.Nil, ErrInvalidAuthFormat
	}

	principalID, err := s.tokens.Verify(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return uuid.Nil, err
	}

	if err := s.checkExists(r.Context(), principalID); err != nil {
		return uuid.Nil, err
	}

	return principalID, nil
}

func (s *authService) checkExists(ctx context.Context, principalID uuid.UUID) error {
	exists, err := s.principals.Exists(ctx, principalID)
	if err != nil {
		return fmt.Errorf("failed to look up principal: %w", err)
	}
	if !exists {
		s.logger.Debug("Token subject does not exist",
			zap.String("principal_id", principalID.String()))
		return ErrPrincipalNotFound
	}
	return nil
}

// parseBearer splits "Bearer <token>". The scheme is matched case-insensitively.
func parseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
