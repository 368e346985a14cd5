// Package audit provides security audit logging for SIEM consumption.
// It logs authentication events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventAuthRejected is logged when the session guard turns a request away.
	EventAuthRejected SecurityEventType = "auth_rejected"
	// EventLoginFailed is logged when credentials do not match.
	EventLoginFailed SecurityEventType = "login_failed"
	// EventUserRegistered is logged when a new account is created.
	EventUserRegistered SecurityEventType = "user_registered"
	// EventDevPassthrough is logged at startup when unauthenticated requests
	// are mapped to the development principal.
	EventDevPassthrough SecurityEventType = "dev_passthrough_enabled"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

// LogAuthRejected records a request refused by the session guard.
// reason is the internal cause; it never reaches the client.
func (a *SecurityAuditor) LogAuthRejected(ctx context.Context, path, reason, clientIP string) {
	event := a.event(ctx, EventAuthRejected, clientIP, "warning", map[string]string{
		"path":   path,
		"reason": reason,
	})

	a.logger.Warn("Authentication rejected",
		zap.String("event_json", event),
		zap.String("path", path),
		zap.String("reason", reason),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}

// LogLoginFailure records a failed login. The email is recorded as submitted
// so repeated attempts against one account can be correlated.
func (a *SecurityAuditor) LogLoginFailure(ctx context.Context, email, clientIP string) {
	event := a.event(ctx, EventLoginFailed, clientIP, "warning", map[string]string{
		"email": email,
	})

	a.logger.Warn("Login failed",
		zap.String("event_json", event),
		zap.String("email", email),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}

// LogRegistration records a new account.
func (a *SecurityAuditor) LogRegistration(ctx context.Context, userID uuid.UUID, clientIP string) {
	event := a.event(auth.WithPrincipal(ctx, userID), EventUserRegistered, clientIP, "info", map[string]string{})

	a.logger.Info("User registered",
		zap.String("event_json", event),
		zap.String("user_id", userID.String()),
		zap.String("client_ip", clientIP),
		zap.String("severity", "info"),
	)
}

// LogDevPassthroughEnabled records that the server accepts unauthenticated
// requests as principalID.
func (a *SecurityAuditor) LogDevPassthroughEnabled(principalID uuid.UUID) {
	event := a.event(context.Background(), EventDevPassthrough, "", "critical", map[string]string{
		"principal_id": principalID.String(),
	})

	a.logger.Warn("Development auth passthrough enabled",
		zap.String("event_json", event),
		zap.String("principal_id", principalID.String()),
		zap.String("severity", "critical"),
	)
}

// event serializes a SecurityEvent for SIEM ingestion.
func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, clientIP, severity string, details any) string {
	e := SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		UserID:    auth.GetPrincipalString(ctx),
		ClientIP:  clientIP,
		Details:   details,
		Severity:  severity,
	}
	// Marshaling known types should never fail
	eventJSON, _ := json.Marshal(e)
	return string(eventJSON)
}

// Ensure SecurityAuditor satisfies the session guard's auditor at compile time.
var _ auth.RejectionAuditor = (*SecurityAuditor)(nil)
