package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// totpPeriod is the TOTP time step in seconds (RFC 6238)
	totpPeriod = 30

	// totpSecretLength is the generated secret length in bytes
	totpSecretLength = 20

	// usedCodePrefix tracks consumed codes for replay prevention
	usedCodePrefix = "mfa:totp:used:"

	// usedCodeTTL keeps used codes slightly longer than the validation window
	usedCodeTTL = 5 * time.Minute
)

var (
	// ErrMFACodeInvalid is returned when a TOTP code fails validation
	ErrMFACodeInvalid = errors.New("invalid verification code")

	// ErrMFACodeReplayed is returned when a TOTP code was already used
	ErrMFACodeReplayed = errors.New("verification code already used")
)

// TOTPEnrollment is returned when a user enrolls in TOTP MFA
type TOTPEnrollment struct {
	Secret      string    `json:"secret"`
	AccountName string    `json:"account_name"`
	Issuer      string    `json:"issuer"`
	OTPAuthURL  string    `json:"otpauth_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// MFAService provides TOTP enrollment and verification
type MFAService struct {
	issuer string
	redis  *redis.Client
	logger *zap.Logger
}

// NewMFAService creates a new MFAService
func NewMFAService(issuer string, redisClient *redis.Client, logger *zap.Logger) *MFAService {
	if issuer == "" {
		issuer = "Omnichat"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MFAService{
		issuer: issuer,
		redis:  redisClient,
		logger: logger,
	}
}

// GenerateSecret generates a new TOTP secret for a user
func (s *MFAService) GenerateSecret(userID, accountName string) (*TOTPEnrollment, error) {
	if accountName == "" {
		accountName = userID
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretLength,
	})
	if err != nil {
		s.logger.Error("failed to generate TOTP secret",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("generate TOTP secret: %w", err)
	}

	s.logger.Info("generated TOTP secret",
		zap.String("user_id", userID),
		zap.String("account_name", accountName),
	)

	return &TOTPEnrollment{
		Secret:      key.Secret(),
		AccountName: accountName,
		Issuer:      s.issuer,
		OTPAuthURL:  key.URL(),
		CreatedAt:   time.Now(),
	}, nil
}

// VerifyCode validates a TOTP code for a user, rejecting replayed codes.
func (s *MFAService) VerifyCode(ctx context.Context, userID, secret, code string) error {
	if secret == "" || code == "" {
		return ErrMFACodeInvalid
	}

	if s.redis != nil {
		usedKey := fmt.Sprintf("%s%s:%s", usedCodePrefix, userID, code)
		exists, err := s.redis.Exists(ctx, usedKey).Result()
		if err != nil {
			s.logger.Warn("replay check failed", zap.Error(err))
		} else if exists > 0 {
			return ErrMFACodeReplayed
		}
	}

	if !totp.Validate(code, secret) {
		return ErrMFACodeInvalid
	}

	if s.redis != nil {
		usedKey := fmt.Sprintf("%s%s:%s", usedCodePrefix, userID, code)
		if err := s.redis.Set(ctx, usedKey, "1", usedCodeTTL).Err(); err != nil {
			s.logger.Warn("failed to record used code", zap.Error(err))
		}
	}

	return nil
}
