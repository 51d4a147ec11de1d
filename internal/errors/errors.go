package errors

import (
	"net/http"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrOutOfBounds      ErrorCode = "40003"

	// Authentication errors (401xx)
	ErrUnauthenticated    ErrorCode = "40101"
	ErrInvalidCredentials ErrorCode = "40102"
	ErrTokenExpiredAuth   ErrorCode = "40103"

	// Authorization errors (403xx)
	ErrForbidden    ErrorCode = "40301"
	ErrOwnedByOther ErrorCode = "40302"

	// Resource errors (404xx)
	ErrNotFound          ErrorCode = "40401"
	ErrUserNotFound      ErrorCode = "40402"
	ErrInvalidCode       ErrorCode = "40403"
	ErrDanglingReference ErrorCode = "40404"

	// Business-rule errors (409xx / 422xx)
	ErrExpired            ErrorCode = "40901"
	ErrExhausted          ErrorCode = "40902"
	ErrAlreadyReferred    ErrorCode = "40903"
	ErrSelfReferral       ErrorCode = "40904"
	ErrInsufficientTokens ErrorCode = "42201"
	ErrInsufficientFunds  ErrorCode = "42202"

	// Server errors (500xx)
	ErrInternalServer        ErrorCode = "50001"
	ErrTransientStoreFailure ErrorCode = "50301"
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

// ErrorBody is the error portion of a response envelope
type ErrorBody struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         ErrorBody `json:"error"`
	RequestID     string    `json:"request_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Path          string    `json:"path,omitempty"`
	Method        string    `json:"method,omitempty"`
}

// NewErrorResponse builds the standard error envelope
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorBody{
			Code:      err.Code,
			Message:   err.Message,
			Details:   err.Details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		RequestID:     requestID,
		CorrelationID: correlationID,
		Path:          path,
		Method:        method,
	}
}

// Common errors
var (
	ErrUnauthenticatedError = &APIError{
		Code:       ErrUnauthenticated,
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpiredAuth,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrUserNotFoundError = &APIError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrNotFoundError = &APIError{
		Code:       ErrNotFound,
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidCodeError = &APIError{
		Code:       ErrInvalidCode,
		Message:    "Code not recognized",
		HTTPStatus: http.StatusNotFound,
	}

	ErrDanglingReferenceError = &APIError{
		Code:       ErrDanglingReference,
		Message:    "Token references content that no longer exists",
		HTTPStatus: http.StatusNotFound,
	}

	ErrExpiredError = &APIError{
		Code:       ErrExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusConflict,
	}

	ErrExhaustedError = &APIError{
		Code:       ErrExhausted,
		Message:    "Token has no remaining uses",
		HTTPStatus: http.StatusConflict,
	}

	ErrOwnedByOtherError = &APIError{
		Code:       ErrOwnedByOther,
		Message:    "Token belongs to another user",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAlreadyReferredError = &APIError{
		Code:       ErrAlreadyReferred,
		Message:    "User already has a referrer",
		HTTPStatus: http.StatusConflict,
	}

	ErrSelfReferralError = &APIError{
		Code:       ErrSelfReferral,
		Message:    "Users cannot refer themselves",
		HTTPStatus: http.StatusConflict,
	}

	ErrInsufficientTokensError = &APIError{
		Code:       ErrInsufficientTokens,
		Message:    "Not enough tokens",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrInsufficientFundsError = &APIError{
		Code:       ErrInsufficientFunds,
		Message:    "Not enough balance",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrOutOfBoundsError = &APIError{
		Code:       ErrOutOfBounds,
		Message:    "Requested amount is outside the allowed range",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrTransientStoreFailureError = &APIError{
		Code:       ErrTransientStoreFailure,
		Message:    "Temporary storage failure, retry may succeed",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// GetHTTPStatusFromCode maps an error code to its HTTP status
func GetHTTPStatusFromCode(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest, ErrValidationFailed, ErrOutOfBounds:
		return http.StatusBadRequest
	case ErrUnauthenticated, ErrInvalidCredentials, ErrTokenExpiredAuth:
		return http.StatusUnauthorized
	case ErrForbidden, ErrOwnedByOther:
		return http.StatusForbidden
	case ErrNotFound, ErrUserNotFound, ErrInvalidCode, ErrDanglingReference:
		return http.StatusNotFound
	case ErrExpired, ErrExhausted, ErrAlreadyReferred, ErrSelfReferral:
		return http.StatusConflict
	case ErrInsufficientTokens, ErrInsufficientFunds:
		return http.StatusUnprocessableEntity
	case ErrTransientStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

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
