package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrPasswordTooShort is returned when the password is less than the minimum length
	ErrPasswordTooShort = errors.New("password is too short")

	// ErrPasswordMissingUppercase is returned when the password has no uppercase letters
	ErrPasswordMissingUppercase = errors.New("password must contain at least one uppercase letter")

	// ErrPasswordMissingLowercase is returned when the password has no lowercase letters
	ErrPasswordMissingLowercase = errors.New("password must contain at least one lowercase letter")

	// ErrPasswordMissingDigit is returned when the password has no digits
	ErrPasswordMissingDigit = errors.New("password must contain at least one digit")

	// ErrPasswordMismatch is returned when the password does not match the hash
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrInvalidHashFormat is returned when the hash format is invalid
	ErrInvalidHashFormat = errors.New("invalid hash format")
)

// PasswordPolicy defines password requirements
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
}

// DefaultPasswordPolicy returns sensible defaults for password policy
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        12,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
	}
}

// PasswordService handles password hashing and verification. New hashes are
// Argon2id; bcrypt hashes from imported accounts verify transparently and
// should be re-hashed on next successful login.
type PasswordService struct {
	policy            PasswordPolicy
	argon2Time        uint32
	argon2Memory      uint32
	argon2Parallelism uint8
	argon2KeyLength   uint32
}

// NewPasswordService creates a new PasswordService with default settings
func NewPasswordService() *PasswordService {
	return &PasswordService{
		policy:            DefaultPasswordPolicy(),
		argon2Time:        3,
		argon2Memory:      64 * 1024,
		argon2Parallelism: 4,
		argon2KeyLength:   32,
	}
}

// WithPolicy sets a custom password policy
func (ps *PasswordService) WithPolicy(policy PasswordPolicy) *PasswordService {
	ps.policy = policy
	return ps
}

// Validate checks if a password meets the policy requirements
func (ps *PasswordService) Validate(password string) error {
	if len(password) < ps.policy.MinLength {
		return fmt.Errorf("%w: minimum length is %d", ErrPasswordTooShort, ps.policy.MinLength)
	}

	if ps.policy.RequireUppercase {
		if matched, _ := regexp.MatchString("[A-Z]", password); !matched {
			return ErrPasswordMissingUppercase
		}
	}

	if ps.policy.RequireLowercase {
		if matched, _ := regexp.MatchString("[a-z]", password); !matched {
			return ErrPasswordMissingLowercase
		}
	}

	if ps.policy.RequireDigit {
		if matched, _ := regexp.MatchString("[0-9]", password); !matched {
			return ErrPasswordMissingDigit
		}
	}

	return nil
}

// Hash generates an Argon2id hash of the password
func (ps *PasswordService) Hash(password string) (string, error) {
	if err := ps.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		ps.argon2Time,
		ps.argon2Memory,
		ps.argon2Parallelism,
		ps.argon2KeyLength,
	)

	// Encoded as: $argon2id$v=19$t=3,m=65536,p=4$salt$hash
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$t=%d,m=%d,p=%d$%s$%s",
		argon2.Version,
		ps.argon2Time,
		ps.argon2Memory,
		ps.argon2Parallelism,
		b64Salt,
		b64Hash,
	), nil
}

// Verify verifies a password against a hash, supporting both Argon2id and bcrypt
func (ps *PasswordService) Verify(password, encodedHash string) (bool, error) {
	if strings.HasPrefix(encodedHash, "$argon2id$") {
		return ps.verifyArgon2id(password, encodedHash)
	}

	if strings.HasPrefix(encodedHash, "$2a$") || strings.HasPrefix(encodedHash, "$2b$") || strings.HasPrefix(encodedHash, "$2y$") {
		return ps.verifyBcrypt(password, encodedHash)
	}

	return false, ErrInvalidHashFormat
}

func (ps *PasswordService) verifyArgon2id(password, encodedHash string) (bool, error) {
	// Hash layout: $argon2id$v=19$t=3,m=65536,p=4$salt$hash
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidHashFormat
	}

	if parts[2] != "v=19" {
		return false, ErrInvalidHashFormat
	}

	var time, memory uint32
	var parallelism uint8
	for _, p := range strings.Split(parts[3], ",") {
		switch {
		case strings.HasPrefix(p, "t="):
			val, err := strconv.ParseUint(strings.TrimPrefix(p, "t="), 10, 32)
			if err != nil {
				return false, ErrInvalidHashFormat
			}
			time = uint32(val)
		case strings.HasPrefix(p, "m="):
			val, err := strconv.ParseUint(strings.TrimPrefix(p, "m="), 10, 32)
			if err != nil {
				return false, ErrInvalidHashFormat
			}
			memory = uint32(val)
		case strings.HasPrefix(p, "p="):
			val, err := strconv.ParseUint(strings.TrimPrefix(p, "p="), 10, 8)
			if err != nil {
				return false, ErrInvalidHashFormat
			}
			parallelism = uint8(val)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		time,
		memory,
		parallelism,
		uint32(len(decodedHash)),
	)

	if subtle.ConstantTimeCompare(hash, decodedHash) == 1 {
		return true, nil
	}

	return false, ErrPasswordMismatch
}

func (ps *PasswordService) verifyBcrypt(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, ErrPasswordMismatch
		}
		return false, fmt.Errorf("bcrypt verify: %w", err)
	}
	return true, nil
}

// NeedsRehash reports whether a hash uses bcrypt and should be upgraded to
// Argon2id on the next successful verification.
func (ps *PasswordService) NeedsRehash(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2") && !strings.HasPrefix(encodedHash, "$argon2")
}
