// Package admin provides the user and session administration API of the
// admin console. Every route is guarded by an explicit authorization
// requirement and every mutation is audited.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/audit"
	"github.com/omnichat/omnichat/internal/auth"
	"github.com/omnichat/omnichat/internal/authz"
	"github.com/omnichat/omnichat/internal/common/config"
	"github.com/omnichat/omnichat/internal/common/database"
	applog "github.com/omnichat/omnichat/internal/common/logger"
)

var (
	ErrUserNotFound = errors.New("admin: user not found")
	// ErrRoleNotAssignable is returned for roles that exist but are never
	// granted through the API.
	ErrRoleNotAssignable = errors.New("admin: role is not assignable")
	ErrEmailTaken        = errors.New("admin: email already in use")
)

// Service provides administrative operations over workspace users.
type Service struct {
	db        *database.PostgresDB
	auth      *auth.Service
	passwords *auth.PasswordService
	recorder  audit.Recorder
	config    *config.Config
	logger    *zap.Logger
	security  *applog.SecurityLogger
}

// NewService creates a new admin service instance.
func NewService(db *database.PostgresDB, authSvc *auth.Service, recorder audit.Recorder, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		auth:      authSvc,
		passwords: auth.NewPasswordService(),
		recorder:  recorder,
		config:    cfg,
		logger:    logger.With(zap.String("service", "admin")),
		security:  applog.NewSecurityLogger(logger),
	}
}

const userSelect = `
	SELECT u.id, u.workspace_id, u.email, u.display_name, u.role, w.plan_tier,
	       u.status, u.mfa_enabled, u.created_at, u.updated_at, u.last_login_at
	FROM admin_users u
	JOIN workspaces w ON w.id = u.workspace_id`

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	var role, tier string
	err := row.Scan(&u.ID, &u.WorkspaceID, &u.Email, &u.DisplayName, &role, &tier,
		&u.Status, &u.MFAEnabled, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
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

// ListUsers returns a page of users in a workspace with a total count.
func (s *Service) ListUsers(ctx context.Context, workspaceID string, limit, offset int) ([]auth.User, int, error) {
	var total int
	err := s.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM admin_users WHERE workspace_id = $1`, workspaceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.Pool.Query(ctx,
		userSelect+` WHERE u.workspace_id = $1 ORDER BY u.created_at ASC LIMIT $2 OFFSET $3`,
		workspaceID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}

	return users, total, rows.Err()
}

// GetUser fetches a single user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.Pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
}

// CreateUserInput holds the fields for creating a user account.
type CreateUserInput struct {
	WorkspaceID string
	Email       string
	DisplayName string
	Role        authz.Role
	Password    string
}

// CreateUser creates a user account in a workspace. The role must be a
// known, assignable role and the password must satisfy the policy.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput, actorID string) (*auth.User, error) {
	if err := validateAssignableRole(input.Role); err != nil {
		return nil, err
	}
	if err := s.passwords.Validate(input.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	var exists bool
	err = s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM admin_users WHERE lower(email) = lower($1))`,
		input.Email,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO admin_users (id, workspace_id, email, display_name, password_hash,
		                          role, status, mfa_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $8)`,
		id, input.WorkspaceID, input.Email, input.DisplayName, hash,
		input.Role, auth.StatusInvited, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", id),
		zap.String("workspace_id", input.WorkspaceID),
		zap.String("role", string(input.Role)))

	s.audit(ctx, &audit.Event{
		WorkspaceID: input.WorkspaceID,
		EventType:   audit.EventTypeUserManagement,
		Action:      "create_user",
		Outcome:     audit.OutcomeSuccess,
		ActorID:     actorID,
		TargetID:    id,
		TargetType:  "user",
		Details:     map[string]any{"email": input.Email, "role": string(input.Role)},
	})

	return s.GetUser(ctx, id)
}

// UpdateUser updates a user's display name.
func (s *Service) UpdateUser(ctx context.Context, id, displayName string, actorID string) (*auth.User, error) {
	result, err := s.db.Pool.Exec(ctx,
		`UPDATE admin_users SET display_name = $1, updated_at = $2 WHERE id = $3`,
		displayName, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &audit.Event{
		WorkspaceID: user.WorkspaceID,
		EventType:   audit.EventTypeUserManagement,
		Action:      "update_user",
		Outcome:     audit.OutcomeSuccess,
		ActorID:     actorID,
		TargetID:    id,
		TargetType:  "user",
	})

	return user, nil
}

// AssignRole moves a user to a new role. The change revokes the user's
// tokens and sessions so no live principal keeps the old role.
func (s *Service) AssignRole(ctx context.Context, id string, newRole authz.Role, actorID string) (*auth.User, error) {
	if err := validateAssignableRole(newRole); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	previousRole := user.Role

	_, err = s.db.Pool.Exec(ctx,
		`UPDATE admin_users SET role = $1, updated_at = $2 WHERE id = $3`,
		newRole, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}

	if err := s.auth.RevokeUser(ctx, id); err != nil {
		return nil, fmt.Errorf("role updated but revocation failed: %w", err)
	}

	s.logger.Info("role assigned",
		zap.String("user_id", id),
		zap.String("previous_role", string(previousRole)),
		zap.String("new_role", string(newRole)))

	s.audit(ctx, &audit.Event{
		WorkspaceID: user.WorkspaceID,
		EventType:   audit.EventTypeRoleManagement,
		Action:      "assign_role",
		Outcome:     audit.OutcomeSuccess,
		ActorID:     actorID,
		TargetID:    id,
		TargetType:  "user",
		Details: map[string]any{
			"previous_role": string(previousRole),
			"new_role":      string(newRole),
		},
	})

	return s.GetUser(ctx, id)
}

// SuspendUser suspends a user and revokes all of their access.
func (s *Service) SuspendUser(ctx context.Context, id, actorID string) error {
	return s.setUserStatus(ctx, id, auth.StatusSuspended, "suspend_user", actorID)
}

// ReactivateUser restores a suspended user.
func (s *Service) ReactivateUser(ctx context.Context, id, actorID string) error {
	return s.setUserStatus(ctx, id, auth.StatusActive, "reactivate_user", actorID)
}

func (s *Service) setUserStatus(ctx context.Context, id string, status auth.UserStatus, action, actorID string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.db.Pool.Exec(ctx,
		`UPDATE admin_users SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set user status: %w", err)
	}

	// A suspended user must lose access immediately, not at token expiry.
	if status == auth.StatusSuspended {
		if err := s.auth.RevokeUser(ctx, id); err != nil {
			return fmt.Errorf("user suspended but revocation failed: %w", err)
		}
	}

	s.logger.Info("user status changed",
		zap.String("user_id", id),
		zap.String("status", string(status)))

	s.audit(ctx, &audit.Event{
		WorkspaceID: user.WorkspaceID,
		EventType:   audit.EventTypeUserManagement,
		Action:      action,
		Outcome:     audit.OutcomeSuccess,
		ActorID:     actorID,
		TargetID:    id,
		TargetType:  "user",
	})

	return nil
}

// ListUserSessions returns the active sessions of a user.
func (s *Service) ListUserSessions(ctx context.Context, userID string) ([]*auth.Session, error) {
	sessions, err := s.auth.Sessions().GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*auth.Session{}
	}
	return sessions, nil
}

// RevokeUserSessions terminates every session and token of a user.
func (s *Service) RevokeUserSessions(ctx context.Context, userID, actorID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.auth.RevokeUser(ctx, userID); err != nil {
		return err
	}

	s.security.LogSessionsRevoked(userID, actorID)
	s.audit(ctx, &audit.Event{
		WorkspaceID: user.WorkspaceID,
		EventType:   audit.EventTypeSessionManagement,
		Action:      "revoke_sessions",
		Outcome:     audit.OutcomeSuccess,
		ActorID:     actorID,
		TargetID:    userID,
		TargetType:  "user",
	})

	return nil
}

func (s *Service) audit(ctx context.Context, event *audit.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event",
			zap.String("action", event.Action), zap.Error(err))
	}
}

// validateAssignableRole rejects unknown roles and the platform owner role,
// which is never granted through the API.
func validateAssignableRole(role authz.Role) error {
	if !authz.IsValidRole(role) {
		return &authz.UnknownRoleError{Role: role}
	}
	if role == authz.RoleRootOwner {
		return ErrRoleNotAssignable
	}
	return nil
}
