package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/repositories"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// TokenTypeBearer is the token_type reported alongside issued tokens.
const TokenTypeBearer = "bearer"

// errInvalidCredentials is returned for every login failure so callers cannot
// tell an unknown email from a wrong password.
var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthenticated)

// RegisterRequest is the input for account registration.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest is the input for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// AccountAuditor receives security events from account operations.
type AccountAuditor interface {
	LogLoginFailure(ctx context.Context, email, clientIP string)
	LogRegistration(ctx context.Context, userID uuid.UUID, clientIP string)
}

// AccountService defines the interface for registration, login and profiles.
type AccountService interface {
	Register(ctx context.Context, req *RegisterRequest, clientIP string) (*AuthResult, error)
	Login(ctx context.Context, req *LoginRequest, clientIP string) (*AuthResult, error)
	Profile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// EnsureDevUser creates the development passthrough principal's user row.
	EnsureDevUser(ctx context.Context) error
}

type accountService struct {
	users    repositories.UserRepository
	hasher   auth.PasswordHasher
	tokens   auth.TokenManager
	tokenTTL time.Duration
	auditor  AccountAuditor
	logger   *zap.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

// NewAccountService creates a new account service. tokenTTL is passed to
// every Issue call.
func NewAccountService(
	users repositories.UserRepository,
	hasher auth.PasswordHasher,
	tokens auth.TokenManager,
	tokenTTL time.Duration,
	auditor AccountAuditor,
	logger *zap.Logger,
) AccountService {
	return &accountService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		auditor:  auditor,
		logger:   logger.Named("accounts"),
	}
}

// Register validates the request, stores the user and issues a token.
func (s *accountService) Register(ctx context.Context, req *RegisterRequest, clientIP string) (*AuthResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", apperrors.ErrInvalidInput)
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: digest,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.auditor.LogRegistration(ctx, user.ID, clientIP)
	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))

	return s.issue(user)
}

// Login checks the credentials and issues a token.
func (s *accountService) Login(ctx context.Context, req *LoginRequest, clientIP string) (*AuthResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", apperrors.ErrInvalidInput)
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Spend the same hashing time as a real check.
			s.hasher.Verify(req.Password, s.timingDigest())
			s.auditor.LogLoginFailure(ctx, email, clientIP)
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.auditor.LogLoginFailure(ctx, email, clientIP)
		return nil, errInvalidCredentials
	}

	return s.issue(user)
}

// Profile returns the user record for userID.
func (s *accountService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// EnsureDevUser inserts the passthrough principal if it does not exist yet.
// The row gets an unusable password digest, so it cannot log in.
func (s *accountService) EnsureDevUser(ctx context.Context) error {
	return s.users.Ensure(ctx, &models.User{
		ID:           auth.DevPrincipalID,
		Email:        "dev@botdesk.local",
		FirstName:    "Local",
		LastName:     "Developer",
		PasswordHash: "!",
	})
}

func (s *accountService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &AuthResult{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		User:        user,
	}, nil
}

func (s *accountService) timingDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("Failed to prepare timing digest", zap.Error(err))
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

// normalizeEmail trims surrounding whitespace and requires a bare address.
// Case is preserved.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", apperrors.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email %q is not a valid address", apperrors.ErrInvalidInput, email)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrInvalidInput, MinPasswordLength)
	}
	if len(password) > auth.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", apperrors.ErrInvalidInput, auth.MaxPasswordBytes)
	}
	return nil
}

var _ AccountService = (*accountService)(nil)
