package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenIssuer is the iss claim on every token botdesk issues.
	TokenIssuer = "botdesk"

	// FallbackTokenTTL applies when Issue is called without a positive TTL.
	FallbackTokenTTL = 15 * time.Minute
)

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, wrong algorithm, expired, malformed, or missing subject.
// Callers cannot tell which check failed.
var ErrInvalidToken = errors.New("invalid token")

// TokenManager issues and verifies access tokens.
type TokenManager interface {
	// Issue mints a token for principalID that expires after ttl.
	// A non-positive ttl falls back to FallbackTokenTTL.
	Issue(principalID uuid.UUID, ttl time.Duration) (string, error)

	// Verify returns the principal encoded in token, or ErrInvalidToken.
	Verify(token string) (uuid.UUID, error)
}

// HMACTokenManager signs tokens with HS256 using a server-held secret.
type HMACTokenManager struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewHMACTokenManager creates a token manager for the given signing secret.
func NewHMACTokenManager(secret string) (*HMACTokenManager, error) {
	return newHMACTokenManager(secret, time.Now)
}

// NewHMACTokenManagerWithClock is NewHMACTokenManager with an injectable clock.
func NewHMACTokenManagerWithClock(secret string, now func() time.Time) (*HMACTokenManager, error) {
	return newHMACTokenManager(secret, now)
}

func newHMACTokenManager(secret string, now func() time.Time) (*HMACTokenManager, error) {
	if secret == "" {
		return nil, errors.New("token signing secret must not be empty")
	}
	return &HMACTokenManager{
		secret: []byte(secret),
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(TokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

// Issue mints a signed token for principalID. exp has whole-second precision
// and is rounded up, so the token is never rejected before ttl has elapsed; it
// may be accepted for less than a second beyond it.
func (m *HMACTokenManager) Issue(principalID uuid.UUID, ttl time.Duration) (string, error) {
	if principalID == uuid.Nil {
		return "", errors.New("cannot issue token for nil principal")
	}
	if ttl <= 0 {
		ttl = FallbackTokenTTL
	}

	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   principalID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(ttl))),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func ceilSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Second)
}

// Verify validates the token and returns its subject as a UUID.
// Every failure wraps ErrInvalidToken; the wrapped detail is for logs only.
func (m *HMACTokenManager) Verify(tokenString string) (uuid.UUID, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil || principalID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user ID", ErrInvalidToken)
	}

	return principalID, nil
}

// Ensure HMACTokenManager implements TokenManager at compile time.
var _ TokenManager = (*HMACTokenManager)(nil)
