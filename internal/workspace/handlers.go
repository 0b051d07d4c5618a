package workspace

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/omnichat/omnichat/internal/authz"
	apperrors "github.com/omnichat/omnichat/internal/common/errors"
)

type createWorkspaceRequest struct {
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug" binding:"required"`
	PlanTier string `json:"plan_tier"`
	MaxSeats int    `json:"max_seats"`
}

type updateWorkspaceRequest struct {
	Name   string `json:"name" binding:"required"`
	Status string `json:"status" binding:"required,oneof=active suspended"`
}

type changePlanRequest struct {
	PlanTier string `json:"plan_tier" binding:"required"`
}

// RegisterRoutes registers workspace routes. Listing and creating workspaces
// is a platform operation; plan changes require billing management.
func RegisterRoutes(rg *gin.RouterGroup, guard *authz.Guard, svc *Service) {
	rg.GET("/workspaces",
		guard.RequireMinRole(authz.RoleSuperAdmin),
		func(c *gin.Context) { handleListWorkspaces(c, svc) })
	rg.POST("/workspaces",
		guard.RequireMinRole(authz.RoleSuperAdmin),
		func(c *gin.Context) { handleCreateWorkspace(c, svc) })
	rg.GET("/workspaces/:id",
		guard.RequirePermission(authz.ResourceSettings, authz.ActionRead),
		func(c *gin.Context) { handleGetWorkspace(c, svc) })
	rg.PUT("/workspaces/:id",
		guard.RequirePermission(authz.ResourceSettings, authz.ActionManage),
		func(c *gin.Context) { handleUpdateWorkspace(c, svc) })
	rg.PUT("/workspaces/:id/plan",
		guard.RequirePermission(authz.ResourceBilling, authz.ActionManage),
		func(c *gin.Context) { handleChangePlan(c, svc) })
	rg.GET("/workspaces/:id/features",
		guard.RequirePermission(authz.ResourceSettings, authz.ActionRead),
		func(c *gin.Context) { handleListFeatures(c, svc) })
}

func handleListWorkspaces(c *gin.Context, svc *Service) {
	limit, offset := pagination(c)

	workspaces, total, err := svc.ListWorkspaces(c.Request.Context(), limit, offset)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("list workspaces", err))
		return
	}
	if workspaces == nil {
		workspaces = []Workspace{}
	}

	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, workspaces)
}

func handleCreateWorkspace(c *gin.Context, svc *Service) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	ws := &Workspace{
		Name:     req.Name,
		Slug:     req.Slug,
		MaxSeats: req.MaxSeats,
	}
	if req.PlanTier != "" {
		tier, err := authz.ParsePlanTier(req.PlanTier)
		if err != nil {
			apperrors.HandleError(c, apperrors.BadRequest("unknown plan tier"))
			return
		}
		ws.PlanTier = tier
	}

	if err := svc.CreateWorkspace(c.Request.Context(), ws); err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("create workspace", err))
		return
	}

	c.JSON(http.StatusCreated, ws)
}

func handleGetWorkspace(c *gin.Context, svc *Service) {
	ws, err := svc.GetWorkspace(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrWorkspaceNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("workspace"))
			return
		}
		apperrors.HandleError(c, apperrors.DatabaseError("get workspace", err))
		return
	}
	c.JSON(http.StatusOK, ws)
}

func handleUpdateWorkspace(c *gin.Context, svc *Service) {
	var req updateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	err := svc.UpdateWorkspace(c.Request.Context(), c.Param("id"), req.Name, WorkspaceStatus(req.Status))
	if err != nil {
		if errors.Is(err, ErrWorkspaceNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("workspace"))
			return
		}
		apperrors.HandleError(c, apperrors.DatabaseError("update workspace", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "workspace updated"})
}

func handleChangePlan(c *gin.Context, svc *Service) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	tier, err := authz.ParsePlanTier(req.PlanTier)
	if err != nil {
		apperrors.HandleError(c, apperrors.BadRequest("unknown plan tier"))
		return
	}

	actorID, _ := c.Get("user_id")
	actorIDStr, _ := actorID.(string)

	ws, err := svc.ChangePlan(c.Request.Context(), c.Param("id"), tier, actorIDStr)
	if err != nil {
		if errors.Is(err, ErrWorkspaceNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("workspace"))
			return
		}
		apperrors.HandleError(c, apperrors.Internal("plan change failed", err))
		return
	}

	c.JSON(http.StatusOK, ws)
}

func handleListFeatures(c *gin.Context, svc *Service) {
	tier, features, err := svc.ListFeatures(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrWorkspaceNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("workspace"))
			return
		}
		apperrors.HandleError(c, apperrors.Internal("feature lookup failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan_tier": tier,
		"features":  features,
	})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
