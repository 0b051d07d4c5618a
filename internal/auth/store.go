package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnichat/omnichat/internal/authz"
)

// ErrUserNotFound is returned when no user matches the lookup
var ErrUserNotFound = errors.New("user not found")

// UserStatus is the lifecycle state of an admin user
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
	StatusInvited   UserStatus = "invited"
)

// User is an admin console user account
type User struct {
	ID           string         `json:"id"`
	WorkspaceID  string         `json:"workspace_id"`
	Email        string         `json:"email"`
	DisplayName  string         `json:"display_name"`
	PasswordHash string         `json:"-"`
	Role         authz.Role     `json:"role"`
	PlanTier     authz.PlanTier `json:"plan_tier"`
	Status       UserStatus     `json:"status"`
	MFASecret    string         `json:"-"`
	MFAEnabled   bool           `json:"mfa_enabled"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
}

// UserStore looks up admin users for authentication
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	RecordLogin(ctx context.Context, id string) error
	SetMFASecret(ctx context.Context, id, secret string, enabled bool) error
}

// PostgresUserStore is the pgx-backed UserStore
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore creates a PostgresUserStore
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

const userSelect = `
	SELECT u.id, u.workspace_id, u.email, u.display_name, u.password_hash,
	       u.role, w.plan_tier, u.status, COALESCE(u.mfa_secret, ''), u.mfa_enabled,
	       u.created_at, u.updated_at, u.last_login_at
	FROM admin_users u
	JOIN workspaces w ON w.id = u.workspace_id`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role, tier string
	err := row.Scan(&u.ID, &u.WorkspaceID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&role, &tier, &u.Status, &u.MFASecret, &u.MFAEnabled,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = authz.Role(role)
	u.PlanTier = authz.PlanTier(tier)
	return &u, nil
}

// GetByEmail fetches a user by email address
func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, userSelect+" WHERE lower(u.email) = lower($1)", email)
	return scanUser(row)
}

// GetByID fetches a user by ID
func (s *PostgresUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx, userSelect+" WHERE u.id = $1", id)
	return scanUser(row)
}

// RecordLogin stamps the user's last login time
func (s *PostgresUserStore) RecordLogin(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE admin_users SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// SetMFASecret stores the user's TOTP secret and enabled flag
func (s *PostgresUserStore) SetMFASecret(ctx context.Context, id, secret string, enabled bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE admin_users SET mfa_secret = $2, mfa_enabled = $3, updated_at = now() WHERE id = $1`,
		id, secret, enabled)
	if err != nil {
		return fmt.Errorf("set mfa secret: %w", err)
	}
	return nil
}
