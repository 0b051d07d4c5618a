// Package workspace manages tenant workspaces and their subscription plans.
// Plan changes flow through here so cached principals are invalidated and the
// change is audited.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/audit"
	"github.com/omnichat/omnichat/internal/authz"
	"github.com/omnichat/omnichat/internal/common/config"
	"github.com/omnichat/omnichat/internal/common/database"
)

var ErrWorkspaceNotFound = errors.New("workspace: not found")

// WorkspaceStatus is the lifecycle state of a workspace.
type WorkspaceStatus string

const (
	StatusActive    WorkspaceStatus = "active"
	StatusSuspended WorkspaceStatus = "suspended"
)

// Workspace is a tenant on the platform. PlanTier drives the feature
// catalog for every principal in the workspace.
type Workspace struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	PlanTier    authz.PlanTier  `json:"plan_tier"`
	Status      WorkspaceStatus `json:"status"`
	Settings    map[string]any  `json:"settings,omitempty"`
	MaxSeats    int             `json:"max_seats"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	MemberCount int             `json:"member_count,omitempty"`
}

// PrincipalInvalidator drops cached principals. A plan change makes every
// cached principal in the workspace stale, so invalidation is not optional.
type PrincipalInvalidator interface {
	InvalidateWorkspace(ctx context.Context, workspaceID string) error
}

// Service provides workspace management operations.
type Service struct {
	db         *database.PostgresDB
	catalog    *authz.Catalog
	principals PrincipalInvalidator
	recorder   audit.Recorder
	config     *config.Config
	logger     *zap.Logger
}

// NewService creates a new workspace service instance.
func NewService(db *database.PostgresDB, catalog *authz.Catalog, principals PrincipalInvalidator, recorder audit.Recorder, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		db:         db,
		catalog:    catalog,
		principals: principals,
		recorder:   recorder,
		config:     cfg,
		logger:     logger.With(zap.String("service", "workspace")),
	}
}

// CreateWorkspace creates a workspace. The plan defaults to starter.
func (s *Service) CreateWorkspace(ctx context.Context, ws *Workspace) error {
	ws.ID = uuid.New().String()
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	if ws.Status == "" {
		ws.Status = StatusActive
	}
	if ws.PlanTier == "" {
		ws.PlanTier = authz.TierStarter
	}
	if !authz.IsValidTier(ws.PlanTier) {
		return &authz.UnknownTierError{Tier: ws.PlanTier}
	}

	settingsJSON, err := json.Marshal(ws.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO workspaces (id, name, slug, plan_tier, status, settings, max_seats, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ws.ID, ws.Name, ws.Slug, ws.PlanTier, ws.Status, settingsJSON,
		ws.MaxSeats, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workspace: %w", err)
	}

	s.logger.Info("workspace created",
		zap.String("workspace_id", ws.ID),
		zap.String("plan_tier", string(ws.PlanTier)))

	return nil
}

// GetWorkspace retrieves a workspace by ID with its member count.
func (s *Service) GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error) {
	var ws Workspace
	var settingsBytes []byte

	err := s.db.Pool.QueryRow(ctx,
		`SELECT w.id, w.name, w.slug, w.plan_tier, w.status, w.settings,
		        w.max_seats, w.created_at, w.updated_at,
		        COUNT(u.id) AS member_count
		 FROM workspaces w
		 LEFT JOIN admin_users u ON w.id = u.workspace_id
		 WHERE w.id = $1
		 GROUP BY w.id`, workspaceID,
	).Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.PlanTier, &ws.Status,
		&settingsBytes, &ws.MaxSeats, &ws.CreatedAt, &ws.UpdatedAt, &ws.MemberCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	if settingsBytes != nil {
		if err := json.Unmarshal(settingsBytes, &ws.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	return &ws, nil
}

// ListWorkspaces returns a paginated list of workspaces with a total count.
func (s *Service) ListWorkspaces(ctx context.Context, limit, offset int) ([]Workspace, int, error) {
	var total int
	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM workspaces`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count workspaces: %w", err)
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT w.id, w.name, w.slug, w.plan_tier, w.status, w.settings,
		        w.max_seats, w.created_at, w.updated_at,
		        COUNT(u.id) AS member_count
		 FROM workspaces w
		 LEFT JOIN admin_users u ON w.id = u.workspace_id
		 GROUP BY w.id
		 ORDER BY w.created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		var settingsBytes []byte
		if err := rows.Scan(
			&ws.ID, &ws.Name, &ws.Slug, &ws.PlanTier, &ws.Status,
			&settingsBytes, &ws.MaxSeats, &ws.CreatedAt, &ws.UpdatedAt, &ws.MemberCount,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan workspace: %w", err)
		}
		if settingsBytes != nil {
			if err := json.Unmarshal(settingsBytes, &ws.Settings); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal settings: %w", err)
			}
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, total, rows.Err()
}

// UpdateWorkspace updates a workspace's name and status. Plan changes go
// through ChangePlan.
func (s *Service) UpdateWorkspace(ctx context.Context, workspaceID, name string, status WorkspaceStatus) error {
	result, err := s.db.Pool.Exec(ctx,
		`UPDATE workspaces SET name = $1, status = $2, updated_at = $3 WHERE id = $4`,
		name, status, time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWorkspaceNotFound
	}

	s.logger.Info("workspace updated", zap.String("workspace_id", workspaceID))
	return nil
}

// ChangePlan moves a workspace to a new subscription tier, invalidates every
// cached principal in the workspace and records the change.
func (s *Service) ChangePlan(ctx context.Context, workspaceID string, newTier authz.PlanTier, actorID string) (*Workspace, error) {
	if !authz.IsValidTier(newTier) {
		return nil, &authz.UnknownTierError{Tier: newTier}
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var previousTier authz.PlanTier
	err = tx.QueryRow(ctx,
		`SELECT plan_tier FROM workspaces WHERE id = $1 FOR UPDATE`, workspaceID,
	).Scan(&previousTier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to read current plan: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE workspaces SET plan_tier = $1, updated_at = $2 WHERE id = $3`,
		newTier, time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to change plan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit plan change: %w", err)
	}

	// Cached principals carry the old tier. Staleness here is a security
	// bug, so invalidation failure fails the operation.
	if err := s.principals.InvalidateWorkspace(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("plan updated but principal invalidation failed: %w", err)
	}

	s.logger.Info("workspace plan changed",
		zap.String("workspace_id", workspaceID),
		zap.String("previous_tier", string(previousTier)),
		zap.String("new_tier", string(newTier)))

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, &audit.Event{
			WorkspaceID: workspaceID,
			EventType:   audit.EventTypePlanManagement,
			Action:      "change_plan",
			Outcome:     audit.OutcomeSuccess,
			ActorID:     actorID,
			TargetID:    workspaceID,
			TargetType:  "workspace",
			Details: map[string]any{
				"previous_tier": string(previousTier),
				"new_tier":      string(newTier),
			},
		}); err != nil {
			s.logger.Warn("failed to audit plan change",
				zap.String("workspace_id", workspaceID), zap.Error(err))
		}
	}

	return s.GetWorkspace(ctx, workspaceID)
}

// ListFeatures returns the features unlocked by the workspace's current tier.
func (s *Service) ListFeatures(ctx context.Context, workspaceID string) (authz.PlanTier, []authz.Feature, error) {
	ws, err := s.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return "", nil, err
	}
	features, err := s.catalog.FeaturesFor(ws.PlanTier)
	if err != nil {
		return "", nil, err
	}
	return ws.PlanTier, features, nil
}
