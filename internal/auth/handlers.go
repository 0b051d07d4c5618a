package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/omnichat/omnichat/internal/common/errors"
	"github.com/omnichat/omnichat/internal/common/middleware"
)

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	MFACode  string `json:"mfa_code"`
}

// RefreshRequest is the request body for POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ActivateMFARequest is the request body for POST /auth/mfa/activate
type ActivateMFARequest struct {
	Code string `json:"code" binding:"required"`
}

// handleLogin handles POST /auth/login
func (s *Service) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError("invalid request body: "+err.Error()))
		return
	}

	result, err := s.Login(c.Request.Context(), req.Email, req.Password, req.MFACode,
		c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		middleware.AuthAttemptsTotal.WithLabelValues("password", "failure").Inc()
		switch {
		case errors.Is(err, ErrMFARequired):
			apperrors.HandleError(c, apperrors.MFARequired())
		case errors.Is(err, ErrMFACodeInvalid), errors.Is(err, ErrMFACodeReplayed):
			apperrors.HandleError(c, apperrors.MFAInvalidCode())
		case errors.Is(err, ErrUserSuspended):
			apperrors.HandleError(c, apperrors.UserSuspended(req.Email))
		case errors.Is(err, ErrInvalidCredentials):
			apperrors.HandleError(c, apperrors.InvalidCredentials())
		default:
			apperrors.HandleError(c, apperrors.Internal("login failed", err))
		}
		return
	}

	middleware.AuthAttemptsTotal.WithLabelValues("password", "success").Inc()
	middleware.ActiveSessionsGauge.WithLabelValues("admin-api").Inc()
	c.JSON(http.StatusOK, result)
}

// handleLogout handles POST /auth/logout
func (s *Service) handleLogout(c *gin.Context) {
	token := bearerToken(c)
	sessionID := c.GetString("session_id")

	if err := s.Logout(c.Request.Context(), token, sessionID); err != nil {
		apperrors.HandleError(c, apperrors.Internal("logout failed", err))
		return
	}

	middleware.ActiveSessionsGauge.WithLabelValues("admin-api").Dec()
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// handleRefresh handles POST /auth/refresh
func (s *Service) handleRefresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError("invalid request body"))
		return
	}

	accessToken, err := s.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			apperrors.HandleError(c, apperrors.TokenExpired())
		default:
			apperrors.HandleError(c, apperrors.InvalidToken("refresh token rejected"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "Bearer",
	})
}

// handleMe handles GET /auth/me
func (s *Service) handleMe(c *gin.Context) {
	userID := c.GetString("user_id")
	user, err := s.Me(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.UserNotFound(userID))
			return
		}
		apperrors.HandleError(c, apperrors.DatabaseError("fetch user", err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleEnrollMFA handles POST /auth/mfa/enroll
func (s *Service) handleEnrollMFA(c *gin.Context) {
	userID := c.GetString("user_id")
	enrollment, err := s.EnrollMFA(c.Request.Context(), userID)
	if err != nil {
		apperrors.HandleError(c, apperrors.Internal("mfa enrollment failed", err))
		return
	}
	c.JSON(http.StatusOK, enrollment)
}

// handleActivateMFA handles POST /auth/mfa/activate
func (s *Service) handleActivateMFA(c *gin.Context) {
	var req ActivateMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError("code is required"))
		return
	}

	userID := c.GetString("user_id")
	if err := s.ActivateMFA(c.Request.Context(), userID, req.Code); err != nil {
		if errors.Is(err, ErrMFACodeInvalid) || errors.Is(err, ErrMFACodeReplayed) {
			apperrors.HandleError(c, apperrors.MFAInvalidCode())
			return
		}
		apperrors.HandleError(c, apperrors.Internal("mfa activation failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "mfa enabled"})
}

// handleListSessions handles GET /auth/sessions
func (s *Service) handleListSessions(c *gin.Context) {
	userID := c.GetString("user_id")
	sessions, err := s.sessions.GetByUser(c.Request.Context(), userID)
	if err != nil {
		apperrors.HandleError(c, apperrors.Internal("list sessions failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// handleRevokeSession handles DELETE /auth/sessions/:id
func (s *Service) handleRevokeSession(c *gin.Context) {
	userID := c.GetString("user_id")
	sessionID := c.Param("id")

	session, err := s.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		apperrors.HandleError(c, apperrors.SessionNotFound(sessionID))
		return
	}
	// Users can only revoke their own sessions here
	if session.UserID != userID {
		apperrors.HandleError(c, apperrors.Forbidden("cannot revoke another user's session"))
		return
	}

	if err := s.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		apperrors.HandleError(c, apperrors.Internal("revoke session failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session revoked"})
}

func bearerToken(c *gin.Context) string {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// RegisterRoutes registers auth routes. The authenticated group must already
// carry the Authenticate middleware.
func RegisterRoutes(public, authenticated *gin.RouterGroup, svc *Service) {
	public.POST("/login", svc.handleLogin)
	public.POST("/refresh", svc.handleRefresh)

	authenticated.POST("/logout", svc.handleLogout)
	authenticated.GET("/me", svc.handleMe)
	authenticated.POST("/mfa/enroll", svc.handleEnrollMFA)
	authenticated.POST("/mfa/activate", svc.handleActivateMFA)
	authenticated.GET("/sessions", svc.handleListSessions)
	authenticated.DELETE("/sessions/:id", svc.handleRevokeSession)
}
