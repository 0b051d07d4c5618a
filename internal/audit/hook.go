package audit

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/authz"
	applog "github.com/omnichat/omnichat/internal/common/logger"
)

// denyRecordTimeout bounds the detached write for a denial event. The
// request has already been answered by the time the hook runs.
const denyRecordTimeout = 5 * time.Second

// GuardDenyHook returns an authz deny hook that persists every denial as
// an authorization audit event and emits a security log line. Recording is
// best-effort and detached from the request.
func GuardDenyHook(rec Recorder, logger *zap.Logger) authz.DenyHook {
	seclog := applog.NewSecurityLogger(logger)
	return func(c *gin.Context, principal authz.Principal, result authz.Result) {
		seclog.LogAccessDenied(principal.ID, principal.WorkspaceID, string(principal.Role),
			c.FullPath(), c.Request.Method, result.Reason)
		details := map[string]any{
			"path":       c.FullPath(),
			"method":     c.Request.Method,
			"reason":     result.Reason,
			"suggestion": string(authz.Classify(result)),
		}
		if result.InsufficientRole {
			details["insufficient_role"] = true
		}
		if len(result.MissingPermissions) > 0 {
			perms := make([]string, 0, len(result.MissingPermissions))
			for _, p := range result.MissingPermissions {
				perms = append(perms, p.String())
			}
			details["missing_permissions"] = perms
		}
		if len(result.MissingFeatures) > 0 {
			feats := make([]string, 0, len(result.MissingFeatures))
			for _, f := range result.MissingFeatures {
				feats = append(feats, string(f))
			}
			details["missing_features"] = feats
		}

		requestID, _ := c.Get("request_id")
		reqIDStr, _ := requestID.(string)
		sessionID, _ := c.Get("session_id")
		sessIDStr, _ := sessionID.(string)

		event := &Event{
			WorkspaceID: principal.WorkspaceID,
			EventType:   EventTypeAuthorization,
			Action:      "access_route",
			Outcome:     OutcomeDenied,
			ActorID:     principal.ID,
			ActorRole:   string(principal.Role),
			ActorIP:     c.ClientIP(),
			Details:     details,
			SessionID:   sessIDStr,
			RequestID:   reqIDStr,
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), denyRecordTimeout)
			defer cancel()
			if err := rec.Record(ctx, event); err != nil {
				logger.Warn("Failed to record authorization denial",
					zap.String("actor_id", event.ActorID),
					zap.Error(err))
			}
		}()
	}
}
