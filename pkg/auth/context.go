package auth

import (
	"context"

	"github.com/google/uuid"
)

// WithPrincipal returns a copy of ctx carrying the authenticated user ID.
func WithPrincipal(ctx context.Context, principalID uuid.UUID) context.Context {
	return context.WithValue(ctx, PrincipalKey, principalID)
}

// GetPrincipalID extracts the authenticated user ID from the context.
// Returns uuid.Nil and false if the request was not authenticated.
func GetPrincipalID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(PrincipalKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetPrincipalString returns the user ID as a string, or "" when absent.
// Convenient for log fields.
func GetPrincipalString(ctx context.Context) string {
	id, ok := GetPrincipalID(ctx)
	if !ok {
		return ""
	}
	return id.String()
}
