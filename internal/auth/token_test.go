package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/omnichat/omnichat/internal/authz"
)

func newTestTokenService(t *testing.T) (*TokenService, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ts := NewTokenService([]byte("test-secret-at-least-32-bytes!!!"), client, zaptest.NewLogger(t))
	return ts, mr
}

func testSubject() TokenSubject {
	return TokenSubject{
		UserID:      "user-1",
		WorkspaceID: "ws-1",
		Role:        authz.RoleManager,
		PlanTier:    authz.TierPro,
		SessionID:   "sess-1",
	}
}

func TestTokenPairRoundTrip(t *testing.T) {
	ts, _ := newTestTokenService(t)
	ctx := context.Background()

	access, refresh, err := ts.GenerateTokenPair(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	claims, err := ts.ValidateAccessToken(ctx, access)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.WorkspaceID != "ws-1" {
		t.Errorf("workspace = %q, want ws-1", claims.WorkspaceID)
	}
	if claims.Role != string(authz.RoleManager) {
		t.Errorf("role = %q, want manager", claims.Role)
	}
	if claims.PlanTier != string(authz.TierPro) {
		t.Errorf("tier = %q, want pro", claims.PlanTier)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("session = %q, want sess-1", claims.SessionID)
	}

	// Refresh token must not validate as an access token
	if _, err := ts.ValidateAccessToken(ctx, refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ValidateAccessToken(refresh) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := ts.ValidateRefreshToken(ctx, refresh); err != nil {
		t.Errorf("ValidateRefreshToken() error = %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	ts, _ := newTestTokenService(t)
	ts.WithConfig(TokenConfig{
		AccessTokenDuration:  -time.Minute,
		RefreshTokenDuration: time.Hour,
		Issuer:               "omnichat",
	})
	ctx := context.Background()

	access, err := ts.GenerateAccessToken(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := ts.ValidateAccessToken(ctx, access); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ValidateAccessToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	ts, _ := newTestTokenService(t)
	ctx := context.Background()

	access, err := ts.GenerateAccessToken(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	other := NewTokenService([]byte("a-completely-different-secret!!!"), nil, nil)
	if _, err := other.ValidateToken(ctx, access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ValidateToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestRevokeToken(t *testing.T) {
	ts, _ := newTestTokenService(t)
	ctx := context.Background()

	access, err := ts.GenerateAccessToken(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if err := ts.RevokeToken(ctx, access); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	if _, err := ts.ValidateAccessToken(ctx, access); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("ValidateAccessToken() error = %v, want ErrTokenRevoked", err)
	}
}

func TestRevokeUserTokens(t *testing.T) {
	ts, _ := newTestTokenService(t)
	ctx := context.Background()

	access, err := ts.GenerateAccessToken(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	// Marker is second-granular, so place it strictly after issuance
	time.Sleep(1100 * time.Millisecond)
	if err := ts.RevokeUserTokens(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeUserTokens() error = %v", err)
	}

	if _, err := ts.ValidateAccessToken(ctx, access); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("ValidateAccessToken() error = %v, want ErrTokenRevoked", err)
	}

	// Tokens issued after the marker validate again. IssuedAt is
	// second-granular, so step past the marker second before issuing.
	time.Sleep(1100 * time.Millisecond)
	fresh, err := ts.GenerateAccessToken(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if _, err := ts.ValidateAccessToken(ctx, fresh); err != nil {
		t.Errorf("ValidateAccessToken(fresh) error = %v", err)
	}
}

func TestRefreshAccessToken(t *testing.T) {
	ts, _ := newTestTokenService(t)
	ctx := context.Background()

	_, refresh, err := ts.GenerateTokenPair(ctx, testSubject())
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	newAccess, err := ts.RefreshAccessToken(ctx, refresh)
	if err != nil {
		t.Fatalf("RefreshAccessToken() error = %v", err)
	}

	claims, err := ts.ValidateAccessToken(ctx, newAccess)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Role != string(authz.RoleManager) {
		t.Errorf("refreshed token role = %q, want manager", claims.Role)
	}

	// An access token cannot be used to refresh
	if _, err := ts.RefreshAccessToken(ctx, newAccess); err == nil {
		t.Error("RefreshAccessToken(access) succeeded, want error")
	}
}
