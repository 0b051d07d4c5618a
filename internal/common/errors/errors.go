// Package errors provides structured error handling for the Omnichat admin API.
package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents an application error code
type ErrorCode string

const (
	// General errors
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrBadRequest   ErrorCode = "BAD_REQUEST"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Resource errors
	ErrUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrUserAlreadyExists  ErrorCode = "USER_ALREADY_EXISTS"
	ErrUserSuspended      ErrorCode = "USER_SUSPENDED"
	ErrWorkspaceNotFound  ErrorCode = "WORKSPACE_NOT_FOUND"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionExpired     ErrorCode = "SESSION_EXPIRED"

	// Authentication & authorization errors
	ErrInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrMFARequired        ErrorCode = "MFA_REQUIRED"
	ErrMFAInvalidCode     ErrorCode = "MFA_INVALID_CODE"
	ErrInsufficientPerms  ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrAuthzMisconfigured ErrorCode = "AUTHZ_MISCONFIGURED"

	// Subscription errors
	ErrUnknownPlanTier   ErrorCode = "UNKNOWN_PLAN_TIER"
	ErrFeatureNotInPlan  ErrorCode = "FEATURE_NOT_IN_PLAN"

	// Database errors
	ErrDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode, Err: err}
}

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       ErrInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Code:       ErrForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return &AppError{
		Code:       ErrValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// UserNotFound creates a user not found error
func UserNotFound(userID string) *AppError {
	return (&AppError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("user_id", userID)
}

// UserAlreadyExists creates a user already exists error
func UserAlreadyExists(email string) *AppError {
	return (&AppError{
		Code:       ErrUserAlreadyExists,
		Message:    "User already exists",
		StatusCode: http.StatusConflict,
	}).WithMetadata("email", email)
}

// UserSuspended creates a user suspended error
func UserSuspended(userID string) *AppError {
	return (&AppError{
		Code:       ErrUserSuspended,
		Message:    "User account is suspended",
		StatusCode: http.StatusForbidden,
	}).WithMetadata("user_id", userID)
}

// WorkspaceNotFound creates a workspace not found error
func WorkspaceNotFound(workspaceID string) *AppError {
	return (&AppError{
		Code:       ErrWorkspaceNotFound,
		Message:    "Workspace not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("workspace_id", workspaceID)
}

// SessionNotFound creates a session not found error
func SessionNotFound(sessionID string) *AppError {
	return (&AppError{
		Code:       ErrSessionNotFound,
		Message:    "Session not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("session_id", sessionID)
}

// SessionExpired creates a session expired error
func SessionExpired() *AppError {
	return &AppError{
		Code:       ErrSessionExpired,
		Message:    "Session has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

// InvalidCredentials creates an invalid credentials error
func InvalidCredentials() *AppError {
	return &AppError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}
}

// InvalidToken creates an invalid token error
func InvalidToken(details string) *AppError {
	return &AppError{
		Code:       ErrInvalidToken,
		Message:    "Invalid authentication token",
		Details:    details,
		StatusCode: http.StatusUnauthorized,
	}
}

// TokenExpired creates a token expired error
func TokenExpired() *AppError {
	return &AppError{
		Code:       ErrTokenExpired,
		Message:    "Authentication token has expired",
		StatusCode: http.StatusUnauthorized,
	}
}

// MFARequired signals that the login needs a TOTP code to complete
func MFARequired() *AppError {
	return &AppError{
		Code:       ErrMFARequired,
		Message:    "Multi-factor code required",
		StatusCode: http.StatusUnauthorized,
	}
}

// MFAInvalidCode creates an invalid TOTP code error
func MFAInvalidCode() *AppError {
	return &AppError{
		Code:       ErrMFAInvalidCode,
		Message:    "Invalid multi-factor code",
		StatusCode: http.StatusUnauthorized,
	}
}

// UnknownPlanTier creates an unknown plan tier error
func UnknownPlanTier(tier string) *AppError {
	return (&AppError{
		Code:       ErrUnknownPlanTier,
		Message:    "Unknown subscription plan tier",
		StatusCode: http.StatusBadRequest,
	}).WithMetadata("tier", tier)
}

// DatabaseError creates a database error
func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:       ErrDatabase,
		Message:    "Database operation failed",
		Details:    operation,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrorResponse is the JSON response structure for errors
type ErrorResponse struct {
	Error     ErrorCode              `json:"error"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HandleError sends an error response to the client
func HandleError(c *gin.Context, err error) {
	appErr, ok := err.(*AppError)
	if !ok {
		appErr = Internal("An unexpected error occurred", err)
	}

	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	c.JSON(appErr.StatusCode, ErrorResponse{
		Error:     appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		Metadata:  appErr.Metadata,
		RequestID: reqIDStr,
	})
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
