// Package audit records security-relevant events from the admin console:
// logins, authorization denials and administrative changes.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/common/config"
	"github.com/omnichat/omnichat/internal/common/database"
)

// Event is a single audit log entry. Details carries event-specific
// context and is stored as JSONB alongside the indexed columns.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	EventType   EventType      `json:"event_type"`
	Action      string         `json:"action"`
	Outcome     Outcome        `json:"outcome"`
	ActorID     string         `json:"actor_id,omitempty"`
	ActorRole   string         `json:"actor_role,omitempty"`
	ActorIP     string         `json:"actor_ip,omitempty"`
	TargetID    string         `json:"target_id,omitempty"`
	TargetType  string         `json:"target_type,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
}

// EventType classifies an audit event.
type EventType string

const (
	EventTypeAuthentication      EventType = "authentication"
	EventTypeAuthorization       EventType = "authorization"
	EventTypeUserManagement      EventType = "user_management"
	EventTypeRoleManagement      EventType = "role_management"
	EventTypeWorkspaceManagement EventType = "workspace_management"
	EventTypePlanManagement      EventType = "plan_management"
	EventTypeSessionManagement   EventType = "session_management"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Query defines parameters for querying audit events.
type Query struct {
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	WorkspaceID string     `json:"workspace_id,omitempty"`
	EventType   EventType  `json:"event_type,omitempty"`
	ActorID     string     `json:"actor_id,omitempty"`
	TargetID    string     `json:"target_id,omitempty"`
	Outcome     Outcome    `json:"outcome,omitempty"`
	Offset      int        `json:"offset"`
	Limit       int        `json:"limit"`
}

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Recorder persists audit events. Satisfied by Service; callers that only
// write events should depend on this interface.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// Service provides audit event recording and querying over PostgreSQL.
type Service struct {
	db     *database.PostgresDB
	config *config.Config
	logger *zap.Logger
}

// NewService creates a new audit service.
func NewService(db *database.PostgresDB, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		panic("audit service logger cannot be nil")
	}
	return &Service{
		db:     db,
		config: cfg,
		logger: logger.With(zap.String("service", "audit")),
	}
}

// Record persists an audit event. ID and Timestamp are assigned when unset.
func (s *Service) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.logger.Debug("Recording audit event",
		zap.String("event_type", string(event.EventType)),
		zap.String("action", event.Action),
		zap.String("outcome", string(event.Outcome)))

	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO audit_events (id, timestamp, workspace_id, event_type, action, outcome,
		                          actor_id, actor_role, actor_ip, target_id, target_type,
		                          details, session_id, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, event.ID, event.Timestamp, event.WorkspaceID, event.EventType, event.Action, event.Outcome,
		event.ActorID, event.ActorRole, event.ActorIP, event.TargetID, event.TargetType,
		details, event.SessionID, event.RequestID)
	return err
}

// QueryEvents returns matching events newest first plus the total match count.
func (s *Service) QueryEvents(ctx context.Context, query *Query) ([]Event, int, error) {
	baseQuery := `
		SELECT id, timestamp, COALESCE(workspace_id, ''), event_type, action, outcome,
		       COALESCE(actor_id, ''), COALESCE(actor_role, ''), COALESCE(actor_ip, ''),
		       COALESCE(target_id, ''), COALESCE(target_type, ''),
		       COALESCE(details::text, '{}')::jsonb,
		       COALESCE(session_id, ''), COALESCE(request_id, '')
		FROM audit_events
		WHERE 1=1
	`
	countQuery := "SELECT COUNT(*) FROM audit_events WHERE 1=1"

	args := []any{}
	argIndex := 1

	addFilter := func(clause string, value any) {
		placeholder := " AND " + clause + " $" + strconv.Itoa(argIndex)
		baseQuery += placeholder
		countQuery += placeholder
		args = append(args, value)
		argIndex++
	}

	if query.StartTime != nil {
		addFilter("timestamp >=", *query.StartTime)
	}
	if query.EndTime != nil {
		addFilter("timestamp <=", *query.EndTime)
	}
	if query.WorkspaceID != "" {
		addFilter("workspace_id =", query.WorkspaceID)
	}
	if query.EventType != "" {
		addFilter("event_type =", query.EventType)
	}
	if query.ActorID != "" {
		addFilter("actor_id =", query.ActorID)
	}
	if query.TargetID != "" {
		addFilter("target_id =", query.TargetID)
	}
	if query.Outcome != "" {
		addFilter("outcome =", query.Outcome)
	}

	var total int
	if err := s.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	baseQuery += " ORDER BY timestamp DESC OFFSET $" + strconv.Itoa(argIndex) + " LIMIT $" + strconv.Itoa(argIndex+1)
	args = append(args, query.Offset, limit)

	rows, err := s.db.Pool.Query(ctx, baseQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.WorkspaceID, &e.EventType, &e.Action, &e.Outcome,
			&e.ActorID, &e.ActorRole, &e.ActorIP, &e.TargetID, &e.TargetType,
			&details, &e.SessionID, &e.RequestID,
		); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				s.logger.Warn("Failed to parse audit event details",
					zap.String("event_id", e.ID), zap.Error(err))
			}
		}
		events = append(events, e)
	}

	return events, total, rows.Err()
}

// GetEvent fetches a single event by ID. Returns pgx.ErrNoRows when absent.
func (s *Service) GetEvent(ctx context.Context, id string) (*Event, error) {
	var e Event
	var details []byte
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, timestamp, COALESCE(workspace_id, ''), event_type, action, outcome,
		       COALESCE(actor_id, ''), COALESCE(actor_role, ''), COALESCE(actor_ip, ''),
		       COALESCE(target_id, ''), COALESCE(target_type, ''),
		       COALESCE(details::text, '{}')::jsonb,
		       COALESCE(session_id, ''), COALESCE(request_id, '')
		FROM audit_events WHERE id = $1
	`, id).Scan(
		&e.ID, &e.Timestamp, &e.WorkspaceID, &e.EventType, &e.Action, &e.Outcome,
		&e.ActorID, &e.ActorRole, &e.ActorIP, &e.TargetID, &e.TargetType,
		&details, &e.SessionID, &e.RequestID,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			s.logger.Warn("Failed to parse audit event details",
				zap.String("event_id", e.ID), zap.Error(err))
		}
	}
	return &e, nil
}
