package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors (401xx)
	ErrInvalidCredentials ErrorCode = "40101"
	ErrTokenExpired       ErrorCode = "40102"

	// Authorization errors (403xx)
	ErrForbidden ErrorCode = "40301"

	// Resource errors (404xx)
	ErrSessionNotFound       ErrorCode = "40401"
	ErrFileNotFound          ErrorCode = "40402"
	ErrKnowledgeBaseNotFound ErrorCode = "40403"
	ErrUserNotFound          ErrorCode = "40404"
	ErrCourseNotFound        ErrorCode = "40405"

	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"

	// Conflict errors (409xx)
	ErrDuplicateFileID         ErrorCode = "40901"
	ErrInvalidStatusTransition ErrorCode = "40902"
	ErrInvalidTransition       ErrorCode = "40903"

	// Payload errors (413xx)
	ErrFileTooLarge       ErrorCode = "41301"
	ErrStorageQuotaExceed ErrorCode = "41302"

	// Extraction errors (422xx)
	ErrExtractionFailed ErrorCode = "42201"

	// Rate limit errors (429xx)
	ErrRateLimited ErrorCode = "42901"

	// Server errors (500xx)
	ErrInternalServer     ErrorCode = "50001"
	ErrNavigationFailed   ErrorCode = "50201"
	ErrBrowserUnavailable ErrorCode = "50301"
	ErrModelUnavailable   ErrorCode = "50302"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id"`
}

// Common errors
var (
	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrSessionNotFoundError = &APIError{
		Code:       ErrSessionNotFound,
		Message:    "Browser session not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrFileNotFoundError = &APIError{
		Code:       ErrFileNotFound,
		Message:    "File not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrKnowledgeBaseNotFoundError = &APIError{
		Code:       ErrKnowledgeBaseNotFound,
		Message:    "Knowledge base not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrUserNotFoundError = &APIError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrCourseNotFoundError = &APIError{
		Code:       ErrCourseNotFound,
		Message:    "Course not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrDuplicateFileIDError = &APIError{
		Code:       ErrDuplicateFileID,
		Message:    "File ID is already registered",
		HTTPStatus: http.StatusConflict,
	}

	ErrInvalidStatusTransitionError = &APIError{
		Code:       ErrInvalidStatusTransition,
		Message:    "File status may only move forward",
		HTTPStatus: http.StatusConflict,
	}

	ErrFileTooLargeError = &APIError{
		Code:       ErrFileTooLarge,
		Message:    "File exceeds the per-file size limit",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrStorageQuotaExceedError = &APIError{
		Code:       ErrStorageQuotaExceed,
		Message:    "Total storage limit exceeded",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrExtractionFailedError = &APIError{
		Code:       ErrExtractionFailed,
		Message:    "Content extraction failed",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrNavigationFailedError = &APIError{
		Code:       ErrNavigationFailed,
		Message:    "Failed to navigate to the course page",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrBrowserUnavailableError = &APIError{
		Code:       ErrBrowserUnavailable,
		Message:    "Browser provider is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrModelUnavailableError = &APIError{
		Code:       ErrModelUnavailable,
		Message:    "Tutor model is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidTransitionError creates a session transition error with the
// rejected operation in the details
func NewInvalidTransitionError(details any) *APIError {
	return &APIError{
		Code:       ErrInvalidTransition,
		Message:    "Operation not allowed in the current session state",
		Details:    details,
		HTTPStatus: http.StatusConflict,
	}
}
