package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func newTestMFAService(t *testing.T) *MFAService {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewMFAService("Omnichat", client, zaptest.NewLogger(t))
}

func TestGenerateSecret(t *testing.T) {
	svc := newTestMFAService(t)

	enrollment, err := svc.GenerateSecret("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}

	if enrollment.Secret == "" {
		t.Error("GenerateSecret() returned empty secret")
	}
	if enrollment.Issuer != "Omnichat" {
		t.Errorf("issuer = %q, want Omnichat", enrollment.Issuer)
	}
	u, err := url.Parse(enrollment.OTPAuthURL)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", enrollment.OTPAuthURL, err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Errorf("OTPAuthURL = %q, want otpauth://totp/ URL", enrollment.OTPAuthURL)
	}
	if !strings.Contains(u.Path, "alice@example.com") {
		t.Errorf("OTPAuthURL path = %q missing account name", u.Path)
	}
	if got := u.Query().Get("issuer"); got != "Omnichat" {
		t.Errorf("OTPAuthURL issuer = %q, want Omnichat", got)
	}
}

func TestVerifyCode(t *testing.T) {
	svc := newTestMFAService(t)
	ctx := context.Background()

	enrollment, err := svc.GenerateSecret("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("totp.GenerateCode() error = %v", err)
	}

	if err := svc.VerifyCode(ctx, "user-1", enrollment.Secret, code); err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}

	// Same code a second time is a replay
	if err := svc.VerifyCode(ctx, "user-1", enrollment.Secret, code); !errors.Is(err, ErrMFACodeReplayed) {
		t.Errorf("VerifyCode() replay error = %v, want ErrMFACodeReplayed", err)
	}

	// Another user can still consume the same digits
	if err := svc.VerifyCode(ctx, "user-2", enrollment.Secret, code); err != nil {
		t.Errorf("VerifyCode() for other user error = %v", err)
	}
}

func TestVerifyCodeRejectsInvalid(t *testing.T) {
	svc := newTestMFAService(t)
	ctx := context.Background()

	enrollment, err := svc.GenerateSecret("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}

	if err := svc.VerifyCode(ctx, "user-1", enrollment.Secret, "000000"); !errors.Is(err, ErrMFACodeInvalid) {
		t.Errorf("VerifyCode() error = %v, want ErrMFACodeInvalid", err)
	}
	if err := svc.VerifyCode(ctx, "user-1", "", "123456"); !errors.Is(err, ErrMFACodeInvalid) {
		t.Errorf("VerifyCode() with empty secret error = %v, want ErrMFACodeInvalid", err)
	}
}
