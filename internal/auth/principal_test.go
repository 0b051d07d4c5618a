package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/omnichat/omnichat/internal/authz"
)

type memoryUserStore struct {
	users map[string]*User
	gets  int
}

func (m *memoryUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memoryUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	m.gets++
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *memoryUserStore) RecordLogin(ctx context.Context, id string) error { return nil }

func (m *memoryUserStore) SetMFASecret(ctx context.Context, id, secret string, enabled bool) error {
	return nil
}

func newTestPrincipalCache(t *testing.T, store UserStore) *PrincipalCache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewPrincipalCache(store, client, 15*time.Minute, zaptest.NewLogger(t))
}

func testStoreUser(id, wsID string, role authz.Role, tier authz.PlanTier) *User {
	return &User{
		ID:          id,
		WorkspaceID: wsID,
		Email:       id + "@example.com",
		Role:        role,
		PlanTier:    tier,
		Status:      StatusActive,
	}
}

func TestPrincipalCacheLoadAndHit(t *testing.T) {
	store := &memoryUserStore{users: map[string]*User{
		"user-1": testStoreUser("user-1", "ws-1", authz.RoleOwner, authz.TierEnterprise),
	}}
	pc := newTestPrincipalCache(t, store)
	ctx := context.Background()

	p, err := pc.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Role != authz.RoleOwner || p.PlanTier != authz.TierEnterprise || p.WorkspaceID != "ws-1" {
		t.Errorf("Load() = %+v, want owner/enterprise/ws-1", p)
	}
	if store.gets != 1 {
		t.Fatalf("store hit %d times, want 1", store.gets)
	}

	// Second load comes from cache
	if _, err := pc.Load(ctx, "user-1"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if store.gets != 1 {
		t.Errorf("store hit %d times after cached load, want 1", store.gets)
	}
}

func TestPrincipalCacheInvalidate(t *testing.T) {
	store := &memoryUserStore{users: map[string]*User{
		"user-1": testStoreUser("user-1", "ws-1", authz.RoleAgent, authz.TierStarter),
	}}
	pc := newTestPrincipalCache(t, store)
	ctx := context.Background()

	p, err := pc.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Role != authz.RoleAgent {
		t.Fatalf("role = %v, want agent", p.Role)
	}

	// Role change followed by invalidation is visible on next load
	store.users["user-1"].Role = authz.RoleManager
	if err := pc.Invalidate(ctx, "user-1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	p, err = pc.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Role != authz.RoleManager {
		t.Errorf("role after invalidation = %v, want manager", p.Role)
	}
}

func TestPrincipalCacheInvalidateWorkspace(t *testing.T) {
	store := &memoryUserStore{users: map[string]*User{
		"user-1": testStoreUser("user-1", "ws-1", authz.RoleOwner, authz.TierStarter),
		"user-2": testStoreUser("user-2", "ws-1", authz.RoleAgent, authz.TierStarter),
		"user-3": testStoreUser("user-3", "ws-2", authz.RoleOwner, authz.TierPro),
	}}
	pc := newTestPrincipalCache(t, store)
	ctx := context.Background()

	for _, id := range []string{"user-1", "user-2", "user-3"} {
		if _, err := pc.Load(ctx, id); err != nil {
			t.Fatalf("Load(%s) error = %v", id, err)
		}
	}

	// Plan upgrade for ws-1
	store.users["user-1"].PlanTier = authz.TierEnterprise
	store.users["user-2"].PlanTier = authz.TierEnterprise
	if err := pc.InvalidateWorkspace(ctx, "ws-1"); err != nil {
		t.Fatalf("InvalidateWorkspace() error = %v", err)
	}

	p, err := pc.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.PlanTier != authz.TierEnterprise {
		t.Errorf("tier after workspace invalidation = %v, want enterprise", p.PlanTier)
	}

	// ws-2 entry still cached
	before := store.gets
	if _, err := pc.Load(ctx, "user-3"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if store.gets != before {
		t.Error("ws-2 principal was evicted by ws-1 invalidation")
	}
}

func TestPrincipalCacheSuspendedUser(t *testing.T) {
	suspended := testStoreUser("user-1", "ws-1", authz.RoleViewer, authz.TierStarter)
	suspended.Status = StatusSuspended
	store := &memoryUserStore{users: map[string]*User{"user-1": suspended}}
	pc := newTestPrincipalCache(t, store)

	if _, err := pc.Load(context.Background(), "user-1"); err == nil {
		t.Error("Load() succeeded for suspended user, want error")
	}
}
