package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/authz"
)

const (
	principalKeyPrefix       = "principal:"
	workspacePrincipalPrefix = "workspace_principals:"
)

// PrincipalCache builds authorization principals from user records and caches
// them in Redis. Role or plan changes must invalidate the affected entries so
// the decision engine never evaluates stale grants.
type PrincipalCache struct {
	store  UserStore
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPrincipalCache creates a PrincipalCache with the given TTL
func NewPrincipalCache(store UserStore, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *PrincipalCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrincipalCache{
		store:  store,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// Load returns the principal for a user, from cache when possible.
// Suspended users never yield a principal.
func (pc *PrincipalCache) Load(ctx context.Context, userID string) (*authz.Principal, error) {
	if pc.redis != nil {
		data, err := pc.redis.Get(ctx, pc.principalKey(userID)).Bytes()
		if err == nil {
			var p authz.Principal
			if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
				return &p, nil
			}
			// Corrupt cache entry, fall through to rebuild
			pc.redis.Del(ctx, pc.principalKey(userID))
		} else if !errors.Is(err, redis.Nil) {
			pc.logger.Warn("principal cache read failed", zap.Error(err))
		}
	}

	user, err := pc.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Status == StatusSuspended {
		return nil, fmt.Errorf("user %s is suspended", userID)
	}

	p := &authz.Principal{
		ID:          user.ID,
		Role:        user.Role,
		PlanTier:    user.PlanTier,
		WorkspaceID: user.WorkspaceID,
	}

	if pc.redis != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := pc.redis.Set(ctx, pc.principalKey(userID), data, pc.ttl).Err(); err != nil {
				pc.logger.Warn("principal cache write failed", zap.Error(err))
			}
			pc.redis.SAdd(ctx, pc.workspaceKey(user.WorkspaceID), userID)
			pc.redis.Expire(ctx, pc.workspaceKey(user.WorkspaceID), pc.ttl*2)
		}
	}

	return p, nil
}

// Invalidate drops the cached principal for a user. Call after role changes,
// suspension, or deletion.
func (pc *PrincipalCache) Invalidate(ctx context.Context, userID string) error {
	if pc.redis == nil {
		return nil
	}
	if err := pc.redis.Del(ctx, pc.principalKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate principal: %w", err)
	}
	pc.logger.Debug("invalidated principal", zap.String("user_id", userID))
	return nil
}

// InvalidateWorkspace drops all cached principals for a workspace. Call after
// a plan tier change so feature grants are re-derived.
func (pc *PrincipalCache) InvalidateWorkspace(ctx context.Context, workspaceID string) error {
	if pc.redis == nil {
		return nil
	}

	wsKey := pc.workspaceKey(workspaceID)
	userIDs, err := pc.redis.SMembers(ctx, wsKey).Result()
	if err != nil {
		return fmt.Errorf("list workspace principals: %w", err)
	}

	for _, uid := range userIDs {
		if err := pc.redis.Del(ctx, pc.principalKey(uid)).Err(); err != nil {
			pc.logger.Warn("failed to invalidate principal",
				zap.String("user_id", uid),
				zap.Error(err))
		}
	}
	pc.redis.Del(ctx, wsKey)

	pc.logger.Debug("invalidated workspace principals",
		zap.String("workspace_id", workspaceID),
		zap.Int("count", len(userIDs)))
	return nil
}

func (pc *PrincipalCache) principalKey(userID string) string {
	return principalKeyPrefix + userID
}

func (pc *PrincipalCache) workspaceKey(workspaceID string) string {
	return workspacePrincipalPrefix + workspaceID
}
