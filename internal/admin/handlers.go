package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/omnichat/omnichat/internal/audit"
	"github.com/omnichat/omnichat/internal/auth"
	"github.com/omnichat/omnichat/internal/authz"
	apperrors "github.com/omnichat/omnichat/internal/common/errors"
)

type createUserRequest struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

type updateUserRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

type assignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// RegisterRoutes registers the admin API. Each route carries its own
// authorization requirement; the audit log API is mounted under /audit.
func RegisterRoutes(rg *gin.RouterGroup, guard *authz.Guard, svc *Service, auditSvc *audit.Service) {
	rg.GET("/dashboard",
		guard.RequirePermission(authz.ResourceAnalytics, authz.ActionRead),
		func(c *gin.Context) { handleGetDashboard(c, svc) })

	rg.GET("/users",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionRead),
		func(c *gin.Context) { handleListUsers(c, svc) })
	rg.POST("/users",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionCreate),
		func(c *gin.Context) { handleCreateUser(c, svc) })
	rg.GET("/users/:id",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionRead),
		func(c *gin.Context) { handleGetUser(c, svc) })
	rg.PUT("/users/:id",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionUpdate),
		func(c *gin.Context) { handleUpdateUser(c, svc) })
	rg.PUT("/users/:id/role",
		guard.RequirePermission(authz.ResourceRoles, authz.ActionManage),
		func(c *gin.Context) { handleAssignRole(c, svc) })
	rg.POST("/users/:id/suspend",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionSuspend),
		func(c *gin.Context) { handleSuspendUser(c, svc) })
	rg.POST("/users/:id/reactivate",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionSuspend),
		func(c *gin.Context) { handleReactivateUser(c, svc) })

	rg.GET("/users/:id/sessions",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionManage),
		func(c *gin.Context) { handleListUserSessions(c, svc) })
	rg.DELETE("/users/:id/sessions",
		guard.RequirePermission(authz.ResourceUsers, authz.ActionManage),
		func(c *gin.Context) { handleRevokeUserSessions(c, svc) })

	auditGroup := rg.Group("/audit",
		guard.RequirePermission(authz.ResourceAuditLogs, authz.ActionRead))
	audit.RegisterRoutes(auditGroup, auditSvc)
}

// requestWorkspace resolves the workspace a request operates on: the
// principal's own workspace, or an explicit override for platform roles.
func requestWorkspace(c *gin.Context) string {
	principal, _ := authz.PrincipalFrom(c)
	if override := c.Query("workspace_id"); override != "" {
		if principal.Role == authz.RoleRootOwner || principal.Role == authz.RoleSuperAdmin {
			return override
		}
	}
	return principal.WorkspaceID
}

func actorID(c *gin.Context) string {
	v, _ := c.Get("user_id")
	id, _ := v.(string)
	return id
}

func handleGetDashboard(c *gin.Context, svc *Service) {
	dashboard, err := svc.GetDashboard(c.Request.Context(), requestWorkspace(c))
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("load dashboard", err))
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func handleListUsers(c *gin.Context, svc *Service) {
	limit, offset := pagination(c)

	users, total, err := svc.ListUsers(c.Request.Context(), requestWorkspace(c), limit, offset)
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("list users", err))
		return
	}
	if users == nil {
		users = []auth.User{}
	}

	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, users)
}

func handleCreateUser(c *gin.Context, svc *Service) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		apperrors.HandleError(c, apperrors.BadRequest("unknown role"))
		return
	}

	user, err := svc.CreateUser(c.Request.Context(), CreateUserInput{
		WorkspaceID: requestWorkspace(c),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        role,
		Password:    req.Password,
	}, actorID(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrRoleNotAssignable):
			apperrors.HandleError(c, apperrors.BadRequest("role is not assignable"))
		case errors.Is(err, ErrEmailTaken):
			apperrors.HandleError(c, apperrors.BadRequest("email already in use"))
		case errors.Is(err, auth.ErrPasswordTooShort),
			errors.Is(err, auth.ErrPasswordMissingUppercase),
			errors.Is(err, auth.ErrPasswordMissingLowercase),
			errors.Is(err, auth.ErrPasswordMissingDigit):
			apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		default:
			apperrors.HandleError(c, apperrors.Internal("create user failed", err))
		}
		return
	}

	c.JSON(http.StatusCreated, user)
}

func handleGetUser(c *gin.Context, svc *Service) {
	user, err := svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("user"))
			return
		}
		apperrors.HandleError(c, apperrors.DatabaseError("get user", err))
		return
	}
	c.JSON(http.StatusOK, user)
}

func handleUpdateUser(c *gin.Context, svc *Service) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	user, err := svc.UpdateUser(c.Request.Context(), c.Param("id"), req.DisplayName, actorID(c))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("user"))
			return
		}
		apperrors.HandleError(c, apperrors.Internal("update user failed", err))
		return
	}
	c.JSON(http.StatusOK, user)
}

func handleAssignRole(c *gin.Context, svc *Service) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		apperrors.HandleError(c, apperrors.BadRequest("unknown role"))
		return
	}

	user, err := svc.AssignRole(c.Request.Context(), c.Param("id"), role, actorID(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			apperrors.HandleError(c, apperrors.NotFound("user"))
		case errors.Is(err, ErrRoleNotAssignable):
			apperrors.HandleError(c, apperrors.BadRequest("role is not assignable"))
		default:
			apperrors.HandleError(c, apperrors.Internal("role assignment failed", err))
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

func handleSuspendUser(c *gin.Context, svc *Service) {
	if err := svc.SuspendUser(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("user"))
			return
		}
		apperrors.HandleError(c, apperrors.Internal("suspend user failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user suspended"})
}

func handleReactivateUser(c *gin.Context, svc *Service) {
	if err := svc.ReactivateUser(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("user"))
			return
		}
		apperrors.HandleError(c, apperrors.Internal("reactivate user failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user reactivated"})
}

func handleListUserSessions(c *gin.Context, svc *Service) {
	sessions, err := svc.ListUserSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, apperrors.Internal("list sessions failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func handleRevokeUserSessions(c *gin.Context, svc *Service) {
	if err := svc.RevokeUserSessions(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.NotFound("user"))
			return
		}
		apperrors.HandleError(c, apperrors.Internal("session revocation failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sessions revoked"})
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
