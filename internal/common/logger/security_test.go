package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedSecurityLogger() (*SecurityLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewSecurityLogger(zap.New(core)), logs
}

func TestLogAccessDeniedWarnsWithContext(t *testing.T) {
	seclog, logs := newObservedSecurityLogger()

	seclog.LogAccessDenied("user-1", "ws-1", "agent", "/api/v1/admin/users", "POST", "missing permission users:create")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("denial logged at %v, want warn", entry.Level)
	}

	fields := entry.ContextMap()
	if fields["log_type"] != "security" {
		t.Errorf("log_type = %v, want security", fields["log_type"])
	}
	if fields["event_type"] != "authorization.denied" {
		t.Errorf("event_type = %v, want authorization.denied", fields["event_type"])
	}
	if fields["actor_id"] != "user-1" || fields["workspace_id"] != "ws-1" {
		t.Errorf("actor/workspace = %v/%v, want user-1/ws-1", fields["actor_id"], fields["workspace_id"])
	}
	if fields["action"] != "POST /api/v1/admin/users" {
		t.Errorf("action = %v, want POST /api/v1/admin/users", fields["action"])
	}
}

func TestLoginOutcomeLevels(t *testing.T) {
	seclog, logs := newObservedSecurityLogger()

	seclog.LogLoginSuccess("user-1", "ws-1", "10.0.0.1")
	seclog.LogLoginFailure("alice@example.com", "10.0.0.2", "bad password")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("success logged at %v, want info", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("failure logged at %v, want warn", entries[1].Level)
	}
	if got := entries[1].ContextMap()["reason"]; got != "bad password" {
		t.Errorf("failure reason = %v, want bad password", got)
	}
}

func TestLogSessionsRevokedCarriesTarget(t *testing.T) {
	seclog, logs := newObservedSecurityLogger()

	seclog.LogSessionsRevoked("user-2", "admin-1")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	meta, ok := fields["metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("metadata field missing or wrong type: %v", fields["metadata"])
	}
	if meta["target_user_id"] != "user-2" {
		t.Errorf("target_user_id = %v, want user-2", meta["target_user_id"])
	}
	if fields["actor_id"] != "admin-1" {
		t.Errorf("actor_id = %v, want admin-1", fields["actor_id"])
	}
}
