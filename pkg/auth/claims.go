// Package auth provides password hashing, self-issued JWT access tokens,
// and the HTTP middleware that resolves a bearer token to a principal.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// PrincipalKey is the context key for storing the authenticated user ID.
	PrincipalKey contextKey = "principal"
)

// Claims is the JWT claim set issued by botdesk.
// Only registered claims are used: sub carries the user ID,
// exp the absolute expiry, iss the fixed TokenIssuer.
type Claims struct {
	jwt.RegisteredClaims
}
