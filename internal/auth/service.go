package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/common/config"
	"github.com/omnichat/omnichat/internal/common/database"
	applog "github.com/omnichat/omnichat/internal/common/logger"
)

// ErrInvalidCredentials is returned when email or password is wrong
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrMFARequired is returned when login needs a TOTP code
var ErrMFARequired = errors.New("mfa code required")

// ErrUserSuspended is returned when a suspended user attempts to log in
var ErrUserSuspended = errors.New("user account is suspended")

// Service wires credential checks, tokens, sessions, MFA and the principal
// cache into the login flow.
type Service struct {
	store      UserStore
	passwords  *PasswordService
	tokens     *TokenService
	sessions   *SessionService
	mfa        *MFAService
	principals *PrincipalCache
	config     *config.Config
	logger     *zap.Logger
	security   *applog.SecurityLogger
}

// NewService creates a new auth service
func NewService(db *database.PostgresDB, redis *database.RedisClient, cfg *config.Config, logger *zap.Logger) *Service {
	log := logger.With(zap.String("service", "auth"))

	store := NewPostgresUserStore(db.Pool)
	tokens := NewTokenService([]byte(cfg.JWTSecret), redis.Client, log).WithConfig(TokenConfig{
		AccessTokenDuration:  time.Duration(cfg.TokenExpiryHours) * time.Hour,
		RefreshTokenDuration: 7 * 24 * time.Hour,
		Issuer:               "omnichat",
	})
	sessions := NewSessionService(redis.Client, log).WithConfig(SessionConfig{
		DefaultTTL: time.Duration(cfg.SessionTTLHours) * time.Hour,
	})
	principals := NewPrincipalCache(store, redis.Client,
		time.Duration(cfg.PrincipalCacheTTLMinutes)*time.Minute, log)

	return &Service{
		store:      store,
		passwords:  NewPasswordService(),
		tokens:     tokens,
		sessions:   sessions,
		mfa:        NewMFAService(cfg.TOTPIssuer, redis.Client, log),
		principals: principals,
		config:     cfg,
		logger:     log,
		security:   applog.NewSecurityLogger(log),
	}
}

// Tokens exposes the token service for middleware wiring
func (s *Service) Tokens() *TokenService { return s.tokens }

// Principals exposes the principal cache for middleware wiring and for
// services that must invalidate entries after role or plan changes.
func (s *Service) Principals() *PrincipalCache { return s.principals }

// Sessions exposes the session service for admin session management
func (s *Service) Sessions() *SessionService { return s.sessions }

// LoginResult is returned on a successful login
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id"`
	User         *User  `json:"user"`
}

// Login verifies credentials (and a TOTP code when the account has MFA
// enabled), creates a session and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password, mfaCode, ipAddress, userAgent string) (*LoginResult, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn time to keep lookup failures indistinguishable
			s.passwords.Verify(password, "$argon2id$v=19$t=3,m=65536,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.passwords.Verify(password, user.PasswordHash)
	if err != nil && !errors.Is(err, ErrPasswordMismatch) {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.security.LogLoginFailure(email, ipAddress, "bad password")
		return nil, ErrInvalidCredentials
	}

	if user.Status == StatusSuspended {
		return nil, ErrUserSuspended
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			return nil, ErrMFARequired
		}
		if err := s.mfa.VerifyCode(ctx, user.ID, user.MFASecret, mfaCode); err != nil {
			s.security.LogLoginFailure(email, ipAddress, "bad mfa code")
			return nil, err
		}
	}

	session, err := s.sessions.Create(ctx, user.ID, user.WorkspaceID, ipAddress, userAgent)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	subject := TokenSubject{
		UserID:      user.ID,
		WorkspaceID: user.WorkspaceID,
		Role:        user.Role,
		PlanTier:    user.PlanTier,
		SessionID:   session.ID,
	}
	accessToken, refreshToken, err := s.tokens.GenerateTokenPair(ctx, subject)
	if err != nil {
		s.sessions.Delete(ctx, session.ID)
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	if err := s.store.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record login", zap.Error(err))
	}

	s.security.LogLoginSuccess(user.ID, user.WorkspaceID, ipAddress)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.config.AccessTokenDuration.Seconds()),
		SessionID:    session.ID,
		User:         user,
	}, nil
}

// Logout revokes the access token and deletes its session
func (s *Service) Logout(ctx context.Context, accessToken, sessionID string) error {
	if err := s.tokens.RevokeToken(ctx, accessToken); err != nil {
		s.logger.Warn("failed to revoke token on logout", zap.Error(err))
	}
	if sessionID != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return nil
}

// Refresh exchanges a refresh token for a new access token, re-checking that
// the backing session is still alive.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	if claims.SessionID != "" {
		if _, err := s.sessions.Get(ctx, claims.SessionID); err != nil {
			return "", ErrTokenRevoked
		}
	}

	return s.tokens.RefreshAccessToken(ctx, refreshToken)
}

// RevokeUser revokes all tokens and sessions for a user and drops their
// cached principal. Used on suspension and role changes.
func (s *Service) RevokeUser(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeUserTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return s.principals.Invalidate(ctx, userID)
}

// EnrollMFA generates a TOTP secret for the user. The secret is stored
// disabled until the user confirms a code via ActivateMFA.
func (s *Service) EnrollMFA(ctx context.Context, userID string) (*TOTPEnrollment, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.mfa.GenerateSecret(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetMFASecret(ctx, user.ID, enrollment.Secret, false); err != nil {
		return nil, err
	}

	return enrollment, nil
}

// ActivateMFA verifies the first TOTP code and enables MFA for the user
func (s *Service) ActivateMFA(ctx context.Context, userID, code string) error {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFASecret == "" {
		return errors.New("no pending MFA enrollment")
	}

	if err := s.mfa.VerifyCode(ctx, user.ID, user.MFASecret, code); err != nil {
		return err
	}

	if err := s.store.SetMFASecret(ctx, user.ID, user.MFASecret, true); err != nil {
		return err
	}

	s.logger.Info("mfa activated", zap.String("user_id", userID))
	return nil
}

// Me returns the current user's record
func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	return s.store.GetByID(ctx, userID)
}
