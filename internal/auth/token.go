// Package auth provides credential verification, JWT tokens, sessions and
// MFA for the Omnichat admin console.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/authz"
)

var (
	// ErrTokenInvalid is returned when a token is malformed or signature verification fails
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrTokenExpired is returned when a token has passed its expiration time
	ErrTokenExpired = errors.New("token is expired")

	// ErrTokenRevoked is returned when a token has been explicitly revoked
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrMissingSecret is returned when no signing secret is configured
	ErrMissingSecret = errors.New("signing secret is required")
)

// Claims is the JWT claims structure for Omnichat admin tokens
type Claims struct {
	WorkspaceID string `json:"wid,omitempty"`
	Role        string `json:"role,omitempty"`
	PlanTier    string `json:"tier,omitempty"`
	SessionID   string `json:"sid,omitempty"`
	TokenType   string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenType represents the type of JWT token
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
)

// TokenConfig holds configuration for token generation
type TokenConfig struct {
	AccessTokenDuration  time.Duration // Default: 15 minutes
	RefreshTokenDuration time.Duration // Default: 7 days
	Issuer               string        // Issuer identifier (e.g., "omnichat")
}

// DefaultTokenConfig returns sensible defaults for token configuration
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
		Issuer:               "omnichat",
	}
}

// TokenService handles JWT token generation, validation, and revocation.
// Tokens are signed with HMAC-SHA256 using a shared secret.
type TokenService struct {
	secret []byte
	redis  *redis.Client
	config TokenConfig
	logger *zap.Logger
}

// NewTokenService creates a new TokenService with the given signing secret and Redis client
func NewTokenService(secret []byte, redisClient *redis.Client, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		secret: secret,
		redis:  redisClient,
		config: DefaultTokenConfig(),
		logger: logger,
	}
}

// WithConfig sets a custom token configuration
func (ts *TokenService) WithConfig(config TokenConfig) *TokenService {
	ts.config = config
	return ts
}

// TokenSubject identifies the user a token is issued for
type TokenSubject struct {
	UserID      string
	WorkspaceID string
	Role        authz.Role
	PlanTier    authz.PlanTier
	SessionID   string
}

// GenerateAccessToken creates a new JWT access token for the given subject
func (ts *TokenService) GenerateAccessToken(ctx context.Context, sub TokenSubject) (string, error) {
	return ts.generateToken(ctx, sub, AccessTokenType, ts.config.AccessTokenDuration)
}

// GenerateRefreshToken creates a new JWT refresh token for the given subject
func (ts *TokenService) GenerateRefreshToken(ctx context.Context, sub TokenSubject) (string, error) {
	return ts.generateToken(ctx, sub, RefreshTokenType, ts.config.RefreshTokenDuration)
}

// GenerateTokenPair creates both access and refresh tokens for the given subject
func (ts *TokenService) GenerateTokenPair(ctx context.Context, sub TokenSubject) (accessToken, refreshToken string, err error) {
	accessToken, err = ts.GenerateAccessToken(ctx, sub)
	if err != nil {
		return "", "", fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err = ts.GenerateRefreshToken(ctx, sub)
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

func (ts *TokenService) generateToken(ctx context.Context, sub TokenSubject, tokenType TokenType, duration time.Duration) (string, error) {
	if len(ts.secret) == 0 {
		return "", ErrMissingSecret
	}

	now := time.Now()
	claims := Claims{
		WorkspaceID: sub.WorkspaceID,
		Role:        string(sub.Role),
		PlanTier:    string(sub.PlanTier),
		SessionID:   sub.SessionID,
		TokenType:   string(tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.config.Issuer,
			Subject:   sub.UserID,
			Audience:  []string{"omnichat-admin"},
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	ts.logger.Debug("generated token",
		zap.String("subject", sub.UserID),
		zap.String("type", string(tokenType)),
		zap.Duration("duration", duration),
	)

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims if valid
func (ts *TokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if len(ts.secret) == 0 {
		return nil, ErrMissingSecret
	}

	// First check if token is revoked
	if ts.redis != nil {
		revoked, err := ts.isTokenRevoked(ctx, tokenString)
		if err != nil {
			ts.logger.Warn("failed to check token revocation status", zap.Error(err))
			// Continue with validation even if Redis check fails
		} else if revoked {
			return nil, ErrTokenRevoked
		}
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	// Tokens issued before a user-wide revocation marker are rejected
	if ts.redis != nil && claims.IssuedAt != nil {
		revokedAt, err := ts.userRevokedAt(ctx, claims.Subject)
		if err == nil && revokedAt > 0 && claims.IssuedAt.Unix() <= revokedAt {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (ts *TokenService) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := ts.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != string(AccessTokenType) {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (ts *TokenService) ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := ts.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != string(RefreshTokenType) {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// RevokeToken adds a token to the Redis blacklist
func (ts *TokenService) RevokeToken(ctx context.Context, tokenString string) error {
	if ts.redis == nil {
		return errors.New("redis client not configured")
	}

	// Parse token without validation to get expiration time
	parser := jwt.Parser{}
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		// Invalid token - can't be used anyway
		return nil
	}

	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			// Token already expired, no need to revoke
			return nil
		}
	} else {
		ttl = 24 * time.Hour
	}

	key := ts.blacklistKey(tokenString)
	if err := ts.redis.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("set token in blacklist: %w", err)
	}

	ts.logger.Debug("revoked token",
		zap.String("subject", claims.Subject),
		zap.Duration("ttl", ttl),
	)

	return nil
}

// RevokeUserTokens revokes all tokens for a specific user. Tokens issued at or
// before the revocation time fail validation.
func (ts *TokenService) RevokeUserTokens(ctx context.Context, userID string) error {
	if ts.redis == nil {
		return errors.New("redis client not configured")
	}

	key := ts.userRevocationKey(userID)
	if err := ts.redis.Set(ctx, key, time.Now().Unix(), ts.config.RefreshTokenDuration).Err(); err != nil {
		return fmt.Errorf("set user revocation marker: %w", err)
	}

	ts.logger.Debug("revoked all tokens for user", zap.String("user_id", userID))
	return nil
}

// RefreshAccessToken generates a new access token using a valid refresh token
func (ts *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := ts.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("validate refresh token: %w", err)
	}

	return ts.GenerateAccessToken(ctx, TokenSubject{
		UserID:      claims.Subject,
		WorkspaceID: claims.WorkspaceID,
		Role:        authz.Role(claims.Role),
		PlanTier:    authz.PlanTier(claims.PlanTier),
		SessionID:   claims.SessionID,
	})
}

func (ts *TokenService) isTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	exists, err := ts.redis.Exists(ctx, ts.blacklistKey(tokenString)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (ts *TokenService) userRevokedAt(ctx context.Context, userID string) (int64, error) {
	val, err := ts.redis.Get(ctx, ts.userRevocationKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (ts *TokenService) blacklistKey(tokenString string) string {
	return fmt.Sprintf("auth:revoked:%s", tokenString)
}

func (ts *TokenService) userRevocationKey(userID string) string {
	return fmt.Sprintf("auth:user_revoked:%s", userID)
}
