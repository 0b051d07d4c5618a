package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/authz"
)

var (
	// ErrMissingAuthHeader is returned when Authorization header is missing
	ErrMissingAuthHeader = errors.New("missing authorization header")

	// ErrInvalidAuthHeader is returned when Authorization header format is invalid
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")

	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid token")
)

// TokenValidator validates access tokens
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error)
}

// PrincipalLoader resolves a user ID to an authorization principal
type PrincipalLoader interface {
	Load(ctx context.Context, userID string) (*authz.Principal, error)
}

// Middleware authenticates requests and attaches the authorization principal
type Middleware struct {
	tokens     TokenValidator
	principals PrincipalLoader
	logger     *zap.Logger
}

// NewMiddleware creates the authentication middleware
func NewMiddleware(tokens TokenValidator, principals PrincipalLoader, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		tokens:     tokens,
		principals: principals,
		logger:     logger,
	}
}

// Authenticate validates the bearer token and loads the caller's principal
// into the request context for later authorization checks.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.logger.Warn("authentication failed: missing authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": ErrMissingAuthHeader.Error(),
			})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": ErrInvalidAuthHeader.Error(),
			})
			return
		}

		claims, err := m.tokens.ValidateAccessToken(c.Request.Context(), parts[1])
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
			)

			errorMsg := ErrInvalidToken.Error()
			if errors.Is(err, ErrTokenExpired) {
				errorMsg = ErrTokenExpired.Error()
			} else if errors.Is(err, ErrTokenRevoked) {
				errorMsg = ErrTokenRevoked.Error()
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": errorMsg,
			})
			return
		}

		principal, err := m.principals.Load(c.Request.Context(), claims.Subject)
		if err != nil {
			m.logger.Warn("failed to load principal",
				zap.String("user_id", claims.Subject),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "account unavailable",
			})
			return
		}

		c.Set("user_id", principal.ID)
		c.Set("session_id", claims.SessionID)
		authz.SetPrincipal(c, *principal)

		m.logger.Debug("user authenticated",
			zap.String("user_id", principal.ID),
			zap.String("role", string(principal.Role)),
		)

		c.Next()
	}
}
