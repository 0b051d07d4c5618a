package logger

import (
	"time"

	"go.uber.org/zap"
)

// SecurityEvent is a structured security log entry. These are emitted in
// addition to the persisted audit trail so log aggregation can alert on
// them without a database query.
type SecurityEvent struct {
	EventType   string
	ActorID     string
	WorkspaceID string
	Action      string
	Status      string
	Reason      string
	IPAddress   string
	Metadata    map[string]interface{}
	Timestamp   time.Time
}

// SecurityLogger writes security events through zap with a fixed log_type
// so they can be filtered out of the general request stream.
type SecurityLogger struct {
	logger *zap.Logger
}

// NewSecurityLogger creates a security logger on top of an existing zap logger.
func NewSecurityLogger(log *zap.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: log.With(zap.String("log_type", "security")),
	}
}

// Log writes a security event. Denied and failure outcomes log at Warn so
// alerting rules can key off level alone.
func (s *SecurityLogger) Log(event *SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("actor_id", event.ActorID),
		zap.String("action", event.Action),
		zap.String("status", event.Status),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.WorkspaceID != "" {
		fields = append(fields, zap.String("workspace_id", event.WorkspaceID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip_address", event.IPAddress))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	switch event.Status {
	case "denied", "failure":
		s.logger.Warn("Security event", fields...)
	default:
		s.logger.Info("Security event", fields...)
	}
}

// LogAccessDenied records an authorization denial.
func (s *SecurityLogger) LogAccessDenied(actorID, workspaceID, role, path, method, reason string) {
	s.Log(&SecurityEvent{
		EventType:   "authorization.denied",
		ActorID:     actorID,
		WorkspaceID: workspaceID,
		Action:      method + " " + path,
		Status:      "denied",
		Reason:      reason,
		Metadata:    map[string]interface{}{"role": role},
	})
}

// LogLoginSuccess records a completed login.
func (s *SecurityLogger) LogLoginSuccess(userID, workspaceID, ipAddress string) {
	s.Log(&SecurityEvent{
		EventType:   "authentication.login",
		ActorID:     userID,
		WorkspaceID: workspaceID,
		Action:      "login",
		Status:      "success",
		IPAddress:   ipAddress,
	})
}

// LogLoginFailure records a failed login attempt. The email is logged
// instead of a user ID because the attempt may not map to an account.
func (s *SecurityLogger) LogLoginFailure(email, ipAddress, reason string) {
	s.Log(&SecurityEvent{
		EventType: "authentication.login",
		ActorID:   email,
		Action:    "login",
		Status:    "failure",
		Reason:    reason,
		IPAddress: ipAddress,
	})
}

// LogSessionsRevoked records a bulk session revocation for a user.
func (s *SecurityLogger) LogSessionsRevoked(userID, actorID string) {
	s.Log(&SecurityEvent{
		EventType: "session.revoked",
		ActorID:   actorID,
		Action:    "revoke_sessions",
		Status:    "success",
		Metadata:  map[string]interface{}{"target_user_id": userID},
	})
}
