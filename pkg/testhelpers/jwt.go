// Package testhelpers provides utilities for testing botdesk components.
package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/botdesk/pkg/auth"
)

// TestSessionSecret is the signing secret used by GenerateTestToken.
const TestSessionSecret = "test-session-secret"

// GenerateTestToken issues a real HS256 access token for userID signed with
// TestSessionSecret.
func GenerateTestToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	tokens, err := auth.NewHMACTokenManager(TestSessionSecret)
	if err != nil {
		t.Fatalf("failed to create token manager: %v", err)
	}
	token, err := tokens.Issue(userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue test token: %v", err)
	}
	return token
}

// GenerateTestTokenWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestTokenWithBearer(t *testing.T, userID uuid.UUID) string {
	return "Bearer " + GenerateTestToken(t, userID)
}
