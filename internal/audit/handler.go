package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/omnichat/omnichat/internal/common/errors"
)

// RegisterRoutes registers audit query routes on the given group. Callers
// guard the group with the appropriate authorization requirement.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service) {
	rg.GET("/events", func(c *gin.Context) { handleListEvents(c, svc) })
	rg.GET("/events/:id", func(c *gin.Context) { handleGetEvent(c, svc) })
}

func handleListEvents(c *gin.Context, svc *Service) {
	query, err := queryFromRequest(c)
	if err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	events, total, err := svc.QueryEvents(c.Request.Context(), query)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("query audit events", err))
		return
	}
	if events == nil {
		events = []Event{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"offset": query.Offset,
	})
}

func handleGetEvent(c *gin.Context, svc *Service) {
	event, err := svc.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apperrors.HandleError(c, apperrors.NotFound("audit event"))
			return
		}
		apperrors.HandleError(c, apperrors.DatabaseError("get audit event", err))
		return
	}
	c.JSON(http.StatusOK, event)
}

// queryFromRequest builds a Query from request parameters. Timestamps are
// RFC 3339.
func queryFromRequest(c *gin.Context) (*Query, error) {
	query := &Query{
		WorkspaceID: c.Query("workspace_id"),
		EventType:   EventType(c.Query("event_type")),
		ActorID:     c.Query("actor"),
		TargetID:    c.Query("target"),
		Outcome:     Outcome(c.Query("outcome")),
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, errors.New("invalid 'from' timestamp, expected RFC 3339")
		}
		query.StartTime = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, errors.New("invalid 'to' timestamp, expected RFC 3339")
		}
		query.EndTime = &t
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return nil, errors.New("invalid 'offset'")
		}
		query.Offset = n
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return nil, errors.New("invalid 'limit'")
		}
		query.Limit = n
	}

	return query, nil
}
