package admin

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Dashboard contains overview statistics for a workspace.
type Dashboard struct {
	TotalUsers      int            `json:"total_users"`
	ActiveUsers     int            `json:"active_users"`
	SuspendedUsers  int            `json:"suspended_users"`
	MFAEnabledUsers int            `json:"mfa_enabled_users"`
	UsersByRole     map[string]int `json:"users_by_role"`
	DeniedRequests  int            `json:"denied_requests_24h"`
	LoginsByDay     []DayStats     `json:"logins_by_day"`
}

// DayStats contains a per-day event count.
type DayStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// GetDashboard assembles workspace overview statistics.
func (s *Service) GetDashboard(ctx context.Context, workspaceID string) (*Dashboard, error) {
	dashboard := &Dashboard{
		UsersByRole: make(map[string]int),
		LoginsByDay: []DayStats{},
	}

	err := s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE status = 'suspended'),
		       COUNT(*) FILTER (WHERE mfa_enabled)
		FROM admin_users WHERE workspace_id = $1`, workspaceID,
	).Scan(&dashboard.TotalUsers, &dashboard.ActiveUsers,
		&dashboard.SuspendedUsers, &dashboard.MFAEnabledUsers)
	if err != nil {
		return nil, fmt.Errorf("user counts: %w", err)
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT role, COUNT(*) FROM admin_users WHERE workspace_id = $1 GROUP BY role`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("role counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		dashboard.UsersByRole[role] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Best-effort statistics over the audit trail; an empty trail is not
	// an error.
	err = s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_events
		WHERE workspace_id = $1 AND event_type = 'authorization'
		  AND outcome = 'denied' AND timestamp >= $2`,
		workspaceID, time.Now().UTC().Add(-24*time.Hour),
	).Scan(&dashboard.DeniedRequests)
	if err != nil {
		s.logger.Warn("failed to count denied requests", zap.Error(err))
	}

	loginRows, err := s.db.Pool.Query(ctx, `
		SELECT to_char(timestamp::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM audit_events
		WHERE workspace_id = $1 AND event_type = 'authentication'
		  AND outcome = 'success' AND timestamp >= $2
		GROUP BY day ORDER BY day ASC`,
		workspaceID, time.Now().UTC().Add(-7*24*time.Hour),
	)
	if err != nil {
		s.logger.Warn("failed to load login statistics", zap.Error(err))
		return dashboard, nil
	}
	defer loginRows.Close()
	for loginRows.Next() {
		var day DayStats
		if err := loginRows.Scan(&day.Date, &day.Count); err != nil {
			return nil, fmt.Errorf("scan login stats: %w", err)
		}
		dashboard.LoginsByDay = append(dashboard.LoginsByDay, day)
	}

	return dashboard, loginRows.Err()
}
