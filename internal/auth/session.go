package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session has expired")

	// ErrMaxSessionsReached is returned when user has reached max concurrent sessions
	ErrMaxSessionsReached = errors.New("maximum concurrent sessions reached")

	// ErrInvalidSessionData is returned when session data is invalid
	ErrInvalidSessionData = errors.New("invalid session data")
)

// Session represents an admin console session
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastSeen    time.Time `json:"last_seen"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// SessionConfig holds configuration for session management
type SessionConfig struct {
	DefaultTTL         time.Duration // Default session timeout (default: 72h)
	MaxSessions        int           // Max concurrent sessions per user (default: 5)
	KeyPrefix          string        // Redis key prefix (default: "session:")
	UserSessionsPrefix string        // Prefix for user session tracking (default: "user_sessions:")
}

// DefaultSessionConfig returns sensible defaults for session configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultTTL:         72 * time.Hour,
		MaxSessions:        5,
		KeyPrefix:          "session:",
		UserSessionsPrefix: "user_sessions:",
	}
}

// SessionService handles session lifecycle in Redis
type SessionService struct {
	redis  *redis.Client
	config SessionConfig
	logger *zap.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(redisClient *redis.Client, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		redis:  redisClient,
		config: DefaultSessionConfig(),
		logger: logger,
	}
}

// WithConfig sets a custom session configuration, preserving defaults for zero values
func (ss *SessionService) WithConfig(config SessionConfig) *SessionService {
	if config.DefaultTTL > 0 {
		ss.config.DefaultTTL = config.DefaultTTL
	}
	if config.MaxSessions > 0 {
		ss.config.MaxSessions = config.MaxSessions
	}
	if config.KeyPrefix != "" {
		ss.config.KeyPrefix = config.KeyPrefix
	}
	if config.UserSessionsPrefix != "" {
		ss.config.UserSessionsPrefix = config.UserSessionsPrefix
	}
	return ss
}

// Create creates a new session for a user, enforcing the max concurrent session limit.
// When the limit is reached the oldest session is evicted.
func (ss *SessionService) Create(ctx context.Context, userID, workspaceID, ipAddress, userAgent string) (*Session, error) {
	if ss.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	currentCount, err := ss.getCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get session count: %w", err)
	}

	if currentCount >= ss.config.MaxSessions {
		if err := ss.deleteOldestSession(ctx, userID); err != nil {
			ss.logger.Warn("failed to delete oldest session", zap.Error(err))
		} else {
			currentCount--
		}
	}

	if currentCount >= ss.config.MaxSessions {
		return nil, fmt.Errorf("%w: maximum %d sessions allowed", ErrMaxSessionsReached, ss.config.MaxSessions)
	}

	now := time.Now()
	session := &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ss.config.DefaultTTL),
		LastSeen:    now,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	sessionKey := ss.sessionKey(session.ID)
	if err := ss.redis.Set(ctx, sessionKey, data, ss.config.DefaultTTL).Err(); err != nil {
		return nil, fmt.Errorf("set session: %w", err)
	}

	userSessionsKey := ss.userSessionsKey(userID)
	if err := ss.redis.SAdd(ctx, userSessionsKey, session.ID).Err(); err != nil {
		// Rollback session creation
		ss.redis.Del(ctx, sessionKey)
		return nil, fmt.Errorf("add to user sessions: %w", err)
	}
	ss.redis.Expire(ctx, userSessionsKey, ss.config.DefaultTTL*2)

	ss.logger.Debug("created session",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Time("expires_at", session.ExpiresAt),
	)

	return session, nil
}

// Get retrieves a session by ID
func (ss *SessionService) Get(ctx context.Context, sessionID string) (*Session, error) {
	if ss.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	sessionKey := ss.sessionKey(sessionID)
	data, err := ss.redis.Get(ctx, sessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, ErrInvalidSessionData
	}

	if time.Now().After(session.ExpiresAt) {
		ss.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// Touch updates the session's last-seen time and extends its Redis TTL
func (ss *SessionService) Touch(ctx context.Context, sessionID string) error {
	session, err := ss.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.LastSeen = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}
	return ss.redis.Set(ctx, ss.sessionKey(sessionID), data, ttl).Err()
}

// Delete removes a session by ID
func (ss *SessionService) Delete(ctx context.Context, sessionID string) error {
	if ss.redis == nil {
		return errors.New("redis client not configured")
	}

	session, err := ss.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		return err
	}

	sessionKey := ss.sessionKey(sessionID)
	if err := ss.redis.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if session != nil {
		ss.redis.SRem(ctx, ss.userSessionsKey(session.UserID), sessionID)
	}

	ss.logger.Debug("deleted session", zap.String("session_id", sessionID))
	return nil
}

// DeleteByUser removes all sessions for a user. Returns ErrSessionNotFound if the user has no sessions.
func (ss *SessionService) DeleteByUser(ctx context.Context, userID string) error {
	if ss.redis == nil {
		return errors.New("redis client not configured")
	}

	sessionIDs, err := ss.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}

	if len(sessionIDs) == 0 {
		return ErrSessionNotFound
	}

	for _, sessionID := range sessionIDs {
		if err := ss.Delete(ctx, sessionID); err != nil {
			ss.logger.Warn("failed to delete session",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	ss.redis.Del(ctx, ss.userSessionsKey(userID))

	ss.logger.Debug("deleted all sessions for user", zap.String("user_id", userID))
	return nil
}

// ListByUser returns all valid session IDs for a user
func (ss *SessionService) ListByUser(ctx context.Context, userID string) ([]string, error) {
	if ss.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	userSessionsKey := ss.userSessionsKey(userID)
	members, err := ss.redis.SMembers(ctx, userSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get user sessions: %w", err)
	}

	var validSessions []string
	for _, sessionID := range members {
		exists, err := ss.redis.Exists(ctx, ss.sessionKey(sessionID)).Result()
		if err == nil && exists > 0 {
			validSessions = append(validSessions, sessionID)
		} else {
			// Clean up stale session ID from set
			ss.redis.SRem(ctx, userSessionsKey, sessionID)
		}
	}

	return validSessions, nil
}

// GetByUser returns all active session objects for a user
func (ss *SessionService) GetByUser(ctx context.Context, userID string) ([]*Session, error) {
	sessionIDs, err := ss.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	for _, sessionID := range sessionIDs {
		session, err := ss.Get(ctx, sessionID)
		if err == nil {
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}

func (ss *SessionService) getCount(ctx context.Context, userID string) (int, error) {
	sessionIDs, err := ss.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(sessionIDs), nil
}

func (ss *SessionService) deleteOldestSession(ctx context.Context, userID string) error {
	sessions, err := ss.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	var oldest *Session
	for _, s := range sessions {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}

	if oldest != nil {
		return ss.Delete(ctx, oldest.ID)
	}
	return nil
}

func (ss *SessionService) sessionKey(sessionID string) string {
	return ss.config.KeyPrefix + sessionID
}

func (ss *SessionService) userSessionsKey(userID string) string {
	return ss.config.UserSessionsPrefix + userID
}
