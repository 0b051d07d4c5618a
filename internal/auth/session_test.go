package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func newTestSessionService(t *testing.T) *SessionService {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSessionService(client, zaptest.NewLogger(t))
}

func TestSessionLifecycle(t *testing.T) {
	ss := newTestSessionService(t)
	ctx := context.Background()

	session, err := ss.Create(ctx, "user-1", "ws-1", "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if session.ID == "" {
		t.Fatal("Create() returned empty session ID")
	}

	got, err := ss.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "user-1" || got.WorkspaceID != "ws-1" {
		t.Errorf("Get() = %+v, want user-1/ws-1", got)
	}

	if err := ss.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := ss.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionMaxConcurrentEvictsOldest(t *testing.T) {
	ss := newTestSessionService(t)
	ss.WithConfig(SessionConfig{MaxSessions: 2})
	ctx := context.Background()

	first, err := ss.Create(ctx, "user-1", "ws-1", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := ss.Create(ctx, "user-1", "ws-1", "", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := ss.Create(ctx, "user-1", "ws-1", "", ""); err != nil {
		t.Fatalf("Create() at limit error = %v", err)
	}

	ids, err := ss.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListByUser() returned %d sessions, want 2", len(ids))
	}
	for _, id := range ids {
		if id == first.ID {
			t.Error("oldest session survived eviction")
		}
	}
}

func TestSessionDeleteByUser(t *testing.T) {
	ss := newTestSessionService(t)
	ctx := context.Background()

	if _, err := ss.Create(ctx, "user-1", "ws-1", "", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := ss.Create(ctx, "user-1", "ws-1", "", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	other, err := ss.Create(ctx, "user-2", "ws-1", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := ss.DeleteByUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}

	ids, err := ss.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("user-1 still has %d sessions after DeleteByUser", len(ids))
	}

	// Other users are untouched
	if _, err := ss.Get(ctx, other.ID); err != nil {
		t.Errorf("user-2 session was deleted: %v", err)
	}

	// No sessions left is an error
	if err := ss.DeleteByUser(ctx, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("DeleteByUser() on empty error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionTouch(t *testing.T) {
	ss := newTestSessionService(t)
	ctx := context.Background()

	session, err := ss.Create(ctx, "user-1", "ws-1", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := ss.Touch(ctx, session.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	got, err := ss.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastSeen.Before(session.LastSeen) {
		t.Error("Touch() did not advance LastSeen")
	}
}
